package models

import "time"

// DocumentKind identifies the role a document plays inside a submission.
type DocumentKind string

const (
	KindApplicationForm    DocumentKind = "application_form"
	KindResearchProtocol   DocumentKind = "research_protocol"
	KindConsentForm        DocumentKind = "consent_form"
	KindResearchInstrument DocumentKind = "research_instrument"
	KindProposalDefense    DocumentKind = "proposal_defense"
	KindEndorsementLetter  DocumentKind = "endorsement_letter"
	KindConsolidated       DocumentKind = "consolidated_application"
	KindCertificate        DocumentKind = "certificate"
)

// GeneratedKinds lists system-rendered documents in consolidation order.
var GeneratedKinds = []DocumentKind{
	KindApplicationForm,
	KindResearchProtocol,
	KindConsentForm,
}

// AttachmentKinds lists uploaded attachments in consolidation order. Each one
// is preceded by a separator page in the consolidated document.
var AttachmentKinds = []DocumentKind{
	KindResearchInstrument,
	KindProposalDefense,
	KindEndorsementLetter,
}

// AttachmentTitles maps attachment kinds to their separator banner titles.
var AttachmentTitles = map[DocumentKind]string{
	KindResearchInstrument: "Research Instrument",
	KindProposalDefense:    "Proposal Defense Certification",
	KindEndorsementLetter:  "Endorsement Letter",
}

// IsValidKind reports whether the kind is a known document kind.
func IsValidKind(kind DocumentKind) bool {
	switch kind {
	case KindApplicationForm, KindResearchProtocol, KindConsentForm,
		KindResearchInstrument, KindProposalDefense, KindEndorsementLetter,
		KindConsolidated, KindCertificate:
		return true
	}
	return false
}

// Document is one artifact belonging to a submission. Verification state and
// its undo snapshot live on the row; superseded rows are kept for audit.
type Document struct {
	ID           string       `db:"id" json:"id"`
	SubmissionID string       `db:"submission_id" json:"submissionId"`
	Kind         DocumentKind `db:"kind" json:"kind"`
	Version      int          `db:"version" json:"version"`
	BlobRef      string       `db:"blob_ref" json:"blobRef"`
	SizeBytes    int64        `db:"size_bytes" json:"sizeBytes"`
	PageCount    *int         `db:"page_count" json:"pageCount,omitempty"`
	UploadedAt   time.Time    `db:"uploaded_at" json:"uploadedAt"`
	SupersededAt *time.Time   `db:"superseded_at" json:"supersededAt,omitempty"`

	IsVerified *bool  `db:"is_verified" json:"isVerified"`
	Comment    string `db:"comment" json:"comment"`

	PrevIsVerified *bool  `db:"prev_is_verified" json:"-"`
	PrevComment    string `db:"prev_comment" json:"-"`
	HasPriorState  bool   `db:"has_prior_state" json:"-"`
}

// IsGenerated reports whether the document is system-rendered rather than
// uploaded by the researcher.
func (d *Document) IsGenerated() bool {
	switch d.Kind {
	case KindApplicationForm, KindResearchProtocol, KindConsentForm, KindConsolidated, KindCertificate:
		return true
	}
	return false
}

// VerificationSet is the derived aggregate over a submission's active
// non-consolidated documents. Predicates are pure in-memory computations.
type VerificationSet struct {
	Documents []Document
}

// NewVerificationSet filters out consolidated and superseded rows.
func NewVerificationSet(docs []Document) VerificationSet {
	active := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Kind == KindConsolidated || doc.Kind == KindCertificate {
			continue
		}
		if doc.SupersededAt != nil {
			continue
		}
		active = append(active, doc)
	}
	return VerificationSet{Documents: active}
}

// AllApproved reports whether every document is verified approved.
func (s VerificationSet) AllApproved() bool {
	if len(s.Documents) == 0 {
		return false
	}
	for _, doc := range s.Documents {
		if doc.IsVerified == nil || !*doc.IsVerified {
			return false
		}
	}
	return true
}

// AnyRejected reports whether at least one document was rejected.
func (s VerificationSet) AnyRejected() bool {
	for _, doc := range s.Documents {
		if doc.IsVerified != nil && !*doc.IsVerified {
			return true
		}
	}
	return false
}

// Pending returns the documents still awaiting a verification decision.
func (s VerificationSet) Pending() []Document {
	pending := make([]Document, 0)
	for _, doc := range s.Documents {
		if doc.IsVerified == nil {
			pending = append(pending, doc)
		}
	}
	return pending
}
