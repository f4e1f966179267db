package models

import "time"

// RevisionRequest is one cycle of documents returned to the researcher.
// The checklist names the document kinds that must be replaced before the
// submission re-enters verification.
type RevisionRequest struct {
	ID           string         `db:"id" json:"id"`
	SubmissionID string         `db:"submission_id" json:"submissionId"`
	Revision     int            `db:"revision" json:"revision"`
	Checklist    []DocumentKind `db:"-" json:"checklist"`
	ChecklistRaw []byte         `db:"checklist" json:"-"`
	Comment      string         `db:"comment" json:"comment"`
	RequestedBy  string         `db:"requested_by" json:"requestedBy"`
	RequestedAt  time.Time      `db:"requested_at" json:"requestedAt"`
	ResolvedAt   *time.Time     `db:"resolved_at" json:"resolvedAt,omitempty"`
}
