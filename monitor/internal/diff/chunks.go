package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// buildChunks emits one Chunk per non-equal opcode, carrying the old/new
// substrings and the later of the two byte offsets as its position.
func buildChunks(oldText, newText string, oldLines, newLines []string, opcodes []difflib.OpCode) []Chunk {
	oldOff := lineOffsets(oldLines)
	newOff := lineOffsets(newLines)

	var chunks []Chunk
	for _, op := range opcodes {
		if op.Tag == 'e' {
			continue
		}
		oldSeg := strings.Join(oldLines[op.I1:op.I2], "\n")
		newSeg := strings.Join(newLines[op.J1:op.J2], "\n")
		pos := oldOff[op.I1]
		if newOff[op.J1] > pos {
			pos = newOff[op.J1]
		}

		switch op.Tag {
		case 'i':
			chunks = append(chunks, Chunk{Kind: ChunkAdd, NewText: newSeg, Position: newOff[op.J1]})
		case 'd':
			chunks = append(chunks, Chunk{Kind: ChunkRemove, OldText: oldSeg, Position: oldOff[op.I1]})
		case 'r':
			chunks = append(chunks, Chunk{Kind: ChunkReplace, OldText: oldSeg, NewText: newSeg, Position: pos})
		}
	}
	return chunks
}

// lineOffsets returns the byte offset of each line start, plus a final entry
// one past the end of the last line.
func lineOffsets(lines []string) []int {
	offsets := make([]int, len(lines)+1)
	pos := 0
	for i, l := range lines {
		offsets[i] = pos
		pos += len(l) + 1 // +1 for the "\n" separator
	}
	offsets[len(lines)] = pos
	return offsets
}
