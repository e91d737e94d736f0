package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const (
	// SourcePreviewLength is the number of characters of a passage kept in a citation.
	SourcePreviewLength = 50

	MetadataPage  = "page"
	MetadataChunk = "chunk"
)

// Source is a citation of a retrieved passage.
type Source struct {
	PageContent string         `json:"pageContent"`
	Metadata    map[string]any `json:"metadata"`
}

// NewSource truncates content to a short preview.
func NewSource(content string, metadata map[string]any) Source {
	preview := content
	if utf8.RuneCountInString(content) > SourcePreviewLength {
		preview = string([]rune(content)[:SourcePreviewLength])
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Source{PageContent: preview + "...", Metadata: metadata}
}

// Page reports the page number recorded in the metadata. Values that went
// through a JSON round trip arrive as float64 or json.Number.
func (s Source) Page() (int, bool) {
	raw, ok := s.Metadata[MetadataPage]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// DedupeSourcesByPage keeps the first source for every page. Sources without
// a page share a single bucket.
func DedupeSourcesByPage(sources []Source) []Source {
	if len(sources) == 0 {
		return sources
	}
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, src := range sources {
		key := "none"
		if page, ok := src.Page(); ok {
			key = fmt.Sprintf("p%d", page)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	return out
}
