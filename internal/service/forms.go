package service

import (
	"fmt"

	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/pdf"
)

// buildApplicationForm maps the application step onto the renderer input.
func buildApplicationForm(title string, step *models.ApplicationStep) pdf.FormDocument {
	return pdf.FormDocument{
		Title:    "Application Form",
		Subtitle: title,
		Sections: []pdf.FormSection{
			{
				Heading: "Study Information",
				Fields: []pdf.FormField{
					{Label: "Study Title", Value: step.StudyTitle},
					{Label: "Principal Investigator", Value: step.PrincipalInvestigator},
					{Label: "Institution", Value: step.Institution},
					{Label: "Study Site", Value: step.StudySite},
					{Label: "Funding Source", Value: step.FundingSource},
					{Label: "Duration (months)", Value: fmt.Sprintf("%d", step.DurationMonths)},
				},
			},
		},
	}
}

// buildProtocolForm maps the protocol step onto the renderer input.
func buildProtocolForm(title string, step *models.ProtocolStep) pdf.FormDocument {
	return pdf.FormDocument{
		Title:    "Research Protocol",
		Subtitle: title,
		Sections: []pdf.FormSection{
			{Heading: "Background", Paragraphs: []string{step.Background}},
			{Heading: "Objectives", Paragraphs: []string{step.Objectives}},
			{
				Heading:    "Methodology",
				Fields:     []pdf.FormField{{Label: "Sample Size", Value: fmt.Sprintf("%d", step.SampleSize)}},
				Paragraphs: []string{step.Methodology},
			},
			{Heading: "Risk Assessment", Paragraphs: []string{step.RiskAssessment}},
			{Heading: "Data Management", Paragraphs: []string{step.DataManagement}},
			{Heading: "Ethical Considerations", Paragraphs: []string{step.EthicalConcerns}},
		},
	}
}

// buildConsentForm maps the consent step onto the renderer input.
func buildConsentForm(title string, step *models.ConsentStep) pdf.FormDocument {
	return pdf.FormDocument{
		Title:    "Informed Consent Form",
		Subtitle: title,
		Sections: []pdf.FormSection{
			{Heading: "Study Procedures", Paragraphs: []string{step.ProcedureSummary}},
			{Heading: "Risks and Benefits", Paragraphs: []string{step.RisksAndBenefits}},
			{Heading: "Confidentiality", Paragraphs: []string{step.ConfidentialityNote}},
			{Heading: "Voluntary Participation and Withdrawal", Paragraphs: []string{step.WithdrawalClause}},
			{Heading: "Contact Information", Paragraphs: []string{step.ContactInformation}},
		},
	}
}
