package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDocument_DisplayName tests title fallback to filename
func TestDocument_DisplayName(t *testing.T) {
	doc := Document{Filename: "paper.pdf"}
	assert.Equal(t, "paper.pdf", doc.DisplayName())

	doc.Title = "Attention Is All You Need"
	assert.Equal(t, "Attention Is All You Need", doc.DisplayName())
}

func TestDocument_Summarise(t *testing.T) {
	year := 2017
	doc := Document{
		ID:       "doc-1",
		Filename: "paper.pdf",
		Title:    "Paper",
		Author:   "Vaswani",
		Year:     &year,
		SHA256:   "abc",
	}

	s := doc.Summarise()
	assert.Equal(t, "doc-1", s.ID)
	assert.Equal(t, "paper.pdf", s.Filename)
	assert.Equal(t, "Paper", s.Title)
	assert.Equal(t, "Vaswani", s.Author)
	require.NotNil(t, s.Year)
	assert.Equal(t, 2017, *s.Year)
}

func TestDocumentPatch_IsEmpty(t *testing.T) {
	assert.True(t, DocumentPatch{}.IsEmpty())

	title := "x"
	assert.False(t, DocumentPatch{Title: &title}.IsEmpty())
	assert.False(t, DocumentPatch{Metadata: map[string]any{"k": "v"}}.IsEmpty())
}

func TestDocumentPatch_Apply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	doc := Document{
		ID:         "doc-1",
		Filename:   "a.pdf",
		Title:      "Old",
		Author:     "Someone",
		Metadata:   map[string]any{"producer": "LaTeX", "tag": "draft"},
		UploadedAt: created,
		UpdatedAt:  created,
	}

	title := "New"
	year := 2020
	patch := DocumentPatch{
		Title:    &title,
		Year:     &year,
		Metadata: map[string]any{"tag": nil, "venue": "NeurIPS"},
	}
	patch.Apply(&doc, now)

	assert.Equal(t, "New", doc.Title)
	assert.Equal(t, "Someone", doc.Author, "unset fields are preserved")
	require.NotNil(t, doc.Year)
	assert.Equal(t, 2020, *doc.Year)
	assert.Equal(t, map[string]any{"producer": "LaTeX", "venue": "NeurIPS"}, doc.Metadata)
	assert.Equal(t, created, doc.UploadedAt)
	assert.Equal(t, now, doc.UpdatedAt)

	// The patch must not alias the caller's year.
	year = 1999
	assert.Equal(t, 2020, *doc.Year)
}

func TestDocumentPatch_ApplyToNilMetadata(t *testing.T) {
	doc := Document{}
	DocumentPatch{Metadata: map[string]any{"k": "v"}}.Apply(&doc, time.Now())
	assert.Equal(t, "v", doc.Metadata["k"])
}
