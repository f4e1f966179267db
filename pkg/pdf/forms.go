package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// FormField is a single labelled value on a generated form.
type FormField struct {
	Label string
	Value string
}

// FormSection groups fields and free-text paragraphs under a heading.
type FormSection struct {
	Heading    string
	Fields     []FormField
	Paragraphs []string
}

// FormDocument is the renderer input for a generated application form,
// research protocol, or consent form.
type FormDocument struct {
	Title    string
	Subtitle string
	Sections []FormSection
}

// FormRenderer renders structured form data into PDF pages.
type FormRenderer struct{}

// NewFormRenderer constructs a form renderer.
func NewFormRenderer() *FormRenderer {
	return &FormRenderer{}
}

// Render creates a PDF document from the structured form content.
func (r *FormRenderer) Render(doc FormDocument) ([]byte, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("form requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "I", 11)
		pdf.CellFormat(0, 7, doc.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(5)

	for _, section := range doc.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 12)
			pdf.SetFillColor(235, 235, 235)
			pdf.CellFormat(0, 8, section.Heading, "", 1, "L", true, 0, "")
			pdf.Ln(2)
		}
		pdf.SetFont("Arial", "", 10)
		for _, field := range section.Fields {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(55, 7, field.Label, "", 0, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			pdf.MultiCell(0, 7, field.Value, "", "L", false)
		}
		for _, paragraph := range section.Paragraphs {
			pdf.MultiCell(0, 6, paragraph, "", "L", false)
			pdf.Ln(2)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render form pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSeparator produces a single banner page inserted in front of an
// uploaded attachment inside the consolidated document.
func (r *FormRenderer) RenderSeparator(title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("separator requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFillColor(31, 78, 121)
	pdf.Rect(0, 120, 210, 40, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetXY(0, 133)
	pdf.CellFormat(210, 14, strings.ToUpper(title), "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render separator pdf: %w", err)
	}
	return buf.Bytes(), nil
}
