package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func renderSampleForm(t *testing.T, title string) []byte {
	t.Helper()
	renderer := NewFormRenderer()
	data, err := renderer.Render(FormDocument{
		Title:    title,
		Subtitle: "Research Ethics Committee",
		Sections: []FormSection{
			{
				Heading: "Study Information",
				Fields: []FormField{
					{Label: "Study Title", Value: "Effects of sleep on recall"},
					{Label: "Principal Investigator", Value: "Dr. Reyes"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	return data
}

func TestFormRendererRequiresTitle(t *testing.T) {
	renderer := NewFormRenderer()
	_, err := renderer.Render(FormDocument{})
	require.Error(t, err)
}

func TestFormRendererOutputIsValidPDF(t *testing.T) {
	data := renderSampleForm(t, "Application Form")
	merger := NewMerger()
	require.NoError(t, merger.Validate(data))

	pages, err := merger.PageCount(data)
	require.NoError(t, err)
	require.Equal(t, 1, pages)
}

func TestRenderSeparatorSinglePage(t *testing.T) {
	renderer := NewFormRenderer()
	data, err := renderer.RenderSeparator("Endorsement Letter")
	require.NoError(t, err)

	merger := NewMerger()
	pages, err := merger.PageCount(data)
	require.NoError(t, err)
	require.Equal(t, 1, pages)
}

func TestMergeConcatenatesAllParts(t *testing.T) {
	renderer := NewFormRenderer()
	merger := NewMerger()

	form := renderSampleForm(t, "Application Form")
	protocol := renderSampleForm(t, "Research Protocol")
	separator, err := renderer.RenderSeparator("Research Instrument")
	require.NoError(t, err)

	merged, pages, err := merger.Merge([][]byte{form, protocol, separator})
	require.NoError(t, err)
	require.Equal(t, 3, pages)
	require.NoError(t, merger.Validate(merged))
}

func TestMergeRejectsEmptyInput(t *testing.T) {
	merger := NewMerger()
	_, _, err := merger.Merge(nil)
	require.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	merger := NewMerger()
	require.Error(t, merger.Validate([]byte("not a pdf")))
}
