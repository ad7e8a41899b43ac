package diff

import "unicode/utf8"

// previewLen bounds chunk text in the serialized form. Full text does not
// round-trip through the wire representation.
const previewLen = 200

// WireChunk is the transport/storage form of a Chunk.
type WireChunk struct {
	Type     string `json:"type"`
	OldText  string `json:"old_text"`
	NewText  string `json:"new_text"`
	Position int    `json:"position"`
}

// WireChunks returns the chunks with text fields truncated to bounded
// previews, ready for JSON serialization.
func (c *Change) WireChunks() []WireChunk {
	out := make([]WireChunk, 0, len(c.Chunks))
	for _, ch := range c.Chunks {
		out = append(out, WireChunk{
			Type:     string(ch.Kind),
			OldText:  truncate(ch.OldText, previewLen),
			NewText:  truncate(ch.NewText, previewLen),
			Position: ch.Position,
		})
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
