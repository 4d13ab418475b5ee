// Package reference maps bracketed numeric markers in a model answer
// back to the document chunks supplied with the request.
package reference

import (
	"regexp"
	"strconv"
)

// Chunk is one numbered piece of ingested document content. Chunks
// arrive pre-parsed with the request; their position defines the
// 1-based marker number the model is told to use.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	Source     string `json:"source,omitempty"`
	SourceInfo string `json:"source_info,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	ChunkID    int    `json:"chunk_id,omitempty"`
}

// Reference is one resolved citation.
type Reference struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	SourceInfo string `json:"source_info,omitempty"`
	Page       int    `json:"page"`
	ChunkID    int    `json:"chunk_id"`
}

var markerRe = regexp.MustCompile(`\[(\d+)\]`)

const maxReferenceText = 300

// Extract scans the content for [n] markers and resolves each unique
// marker, in order of first appearance, against the chunk list.
// Markers outside 1..len(chunks) are ignored.
func Extract(content string, chunks []Chunk) []Reference {
	if content == "" || len(chunks) == 0 {
		return []Reference{}
	}

	seen := make(map[int]bool)
	refs := make([]Reference, 0, 4)
	for _, m := range markerRe.FindAllStringSubmatch(content, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true

		if n < 1 || n > len(chunks) {
			continue
		}
		chunk := chunks[n-1]

		source := chunk.Metadata.Source
		if source == "" {
			source = "Unknown source"
		}
		page := chunk.Metadata.PageNumber
		if page == 0 {
			page = 1
		}

		refs = append(refs, Reference{
			ID:         n,
			Text:       truncate(chunk.Content, maxReferenceText),
			Source:     source,
			SourceInfo: chunk.Metadata.SourceInfo,
			Page:       page,
			ChunkID:    chunk.Metadata.ChunkID,
		})
	}
	return refs
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
