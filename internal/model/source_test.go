package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSourceTruncatesPreview(t *testing.T) {
	long := strings.Repeat("é", 80)
	src := NewSource(long, map[string]any{MetadataPage: 3})

	assert.Equal(t, strings.Repeat("é", SourcePreviewLength)+"...", src.PageContent)
	page, ok := src.Page()
	require.True(t, ok)
	assert.Equal(t, 3, page)

	short := NewSource("tiny", nil)
	assert.Equal(t, "tiny...", short.PageContent)
	assert.NotNil(t, short.Metadata)
}

func TestSourcePageSurvivesJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal([]Source{NewSource("abc", map[string]any{MetadataPage: 7})})
	require.NoError(t, err)

	var decoded []Source
	require.NoError(t, json.Unmarshal(raw, &decoded))
	page, ok := decoded[0].Page()
	require.True(t, ok)
	assert.Equal(t, 7, page)
}

func TestDedupeSourcesByPageKeepsFirst(t *testing.T) {
	sources := []Source{
		{PageContent: "a", Metadata: map[string]any{MetadataPage: 1}},
		{PageContent: "b", Metadata: map[string]any{MetadataPage: 2}},
		{PageContent: "c", Metadata: map[string]any{MetadataPage: float64(1)}},
		{PageContent: "d", Metadata: map[string]any{}},
		{PageContent: "e", Metadata: map[string]any{"other": true}},
	}

	got := DedupeSourcesByPage(sources)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].PageContent)
	assert.Equal(t, "b", got[1].PageContent)
	assert.Equal(t, "d", got[2].PageContent)
}

func TestDedupeSourcesByPageIsIdempotent(t *testing.T) {
	sources := []Source{
		{PageContent: "a", Metadata: map[string]any{MetadataPage: 4}},
		{PageContent: "b", Metadata: map[string]any{MetadataPage: "4"}},
		{PageContent: "c", Metadata: map[string]any{MetadataPage: 5}},
	}

	once := DedupeSourcesByPage(sources)
	twice := DedupeSourcesByPage(once)
	assert.Equal(t, once, twice)
	assert.Empty(t, DedupeSourcesByPage(nil))
}
