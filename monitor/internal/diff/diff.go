// Package diff decides whether two text snapshots differ enough to matter
// and produces a structured, serializable description of the difference.
//
// Similarity is computed with line-level sequence matching; replaced regions
// are re-matched at character granularity so small in-line edits are
// credited partial similarity instead of counting as full line rewrites.
// The resulting ratio is 2M/T (M = matched characters, T = total characters)
// and is deterministic for fixed inputs. Sensitivity thresholds are tuned
// against this measure; changing the algorithm changes their meaning.
package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Sensitivity is a named threshold policy controlling how much textual
// change is required to emit a change.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ParseSensitivity maps a stored string to a Sensitivity, defaulting to
// medium for unknown values.
func ParseSensitivity(s string) Sensitivity {
	switch v := Sensitivity(strings.ToLower(s)); v {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return v
	default:
		return SensitivityMedium
	}
}

type policy struct {
	minChangeRatio float64
	minLineChanges int
}

// Raising sensitivity lowers both thresholds: every change that fires at a
// lower level also fires at a higher one.
var policies = map[Sensitivity]policy{
	SensitivityLow:    {minChangeRatio: 0.30, minLineChanges: 10},
	SensitivityMedium: {minChangeRatio: 0.10, minLineChanges: 3},
	SensitivityHigh:   {minChangeRatio: 0.02, minLineChanges: 1},
}

// ChunkKind classifies a difference region.
type ChunkKind string

const (
	ChunkAdd     ChunkKind = "add"
	ChunkRemove  ChunkKind = "remove"
	ChunkReplace ChunkKind = "replace"
)

// Chunk is one contiguous difference region. Position is a byte offset into
// the relevant text (the later of the old/new offsets, for ordering).
type Chunk struct {
	Kind     ChunkKind
	OldText  string
	NewText  string
	Position int
}

// Change describes a qualifying difference between two texts.
type Change struct {
	Summary        string
	Classification string // minor | moderate | major
	ChangeRatio    float64
	AddedLines     int
	RemovedLines   int
	Chunks         []Chunk
}

// Engine computes text changes. Stateless and safe for concurrent use.
type Engine struct{}

// New creates a diff Engine.
func New() *Engine {
	return &Engine{}
}

// Compute compares two texts under the given sensitivity. It returns nil
// when the change ratio is below the policy's ratio threshold and both the
// added and removed line counts are below its line threshold. Identical
// inputs always return nil.
func (e *Engine) Compute(oldText, newText string, level Sensitivity) *Change {
	if oldText == newText {
		return nil
	}
	pol := policies[ParseSensitivity(string(level))]

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	opcodes := difflib.NewMatcher(oldLines, newLines).GetOpCodes()
	ratio := changeRatio(oldText, newText, oldLines, newLines, opcodes)
	added, removed := lineChanges(oldLines, newLines)

	if ratio < pol.minChangeRatio && added < pol.minLineChanges && removed < pol.minLineChanges {
		return nil
	}

	chunks := buildChunks(oldText, newText, oldLines, newLines, opcodes)
	cls := classify(ratio)

	return &Change{
		Summary:        renderSummary(cls, ratio, added, removed),
		Classification: cls,
		ChangeRatio:    ratio,
		AddedLines:     added,
		RemovedLines:   removed,
		Chunks:         chunks,
	}
}

// lineChanges counts lines by set membership, so a moved line is not a change.
func lineChanges(oldLines, newLines []string) (added, removed int) {
	oldSet := make(map[string]struct{}, len(oldLines))
	for _, l := range oldLines {
		oldSet[l] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, l := range newLines {
		newSet[l] = struct{}{}
	}
	for _, l := range newLines {
		if _, ok := oldSet[l]; !ok {
			added++
		}
	}
	for _, l := range oldLines {
		if _, ok := newSet[l]; !ok {
			removed++
		}
	}
	return added, removed
}

func classify(ratio float64) string {
	switch {
	case ratio < 0.10:
		return "minor"
	case ratio < 0.30:
		return "moderate"
	default:
		return "major"
	}
}

func renderSummary(cls string, ratio float64, added, removed int) string {
	var parts []string
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d lines added", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d lines removed", removed))
	}
	detail := strings.Join(parts, ", ")
	if detail == "" {
		detail = "content rearranged"
	}
	label := map[string]string{"minor": "Minor", "moderate": "Moderate", "major": "Major"}[cls]
	return fmt.Sprintf("%s update (change ratio %.1f%%): %s", label, ratio*100, detail)
}
