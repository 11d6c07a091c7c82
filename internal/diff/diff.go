package diff

import (
	"bytes"
	"fmt"
)

// LineType indicates whether a line was added, removed, or is context.
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is a single line in a diff.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// Hunk is a continuous section of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result contains the complete diff information.
type Result struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Engine provides line-based diffing.
type Engine struct {
	contextLines int
}

// NewEngine creates a diff engine with the given number of context
// lines per hunk.
func NewEngine(contextLines int) *Engine {
	return &Engine{contextLines: contextLines}
}

// Diff computes a line-by-line diff between two contents.
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	lcs := buildLCSMatrix(oldLines, newLines)
	ops := backtrack(oldLines, newLines, lcs)

	result := &Result{Hunks: e.buildHunks(ops)}
	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

func buildLCSMatrix(oldLines, newLines [][]byte) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}

	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}
	return matrix
}

// backtrack walks the LCS matrix back to front and returns the full
// line-op sequence in document order. Additions carry the old line
// number they insert after; deletions carry the new line number they
// sit after.
func backtrack(oldLines, newLines [][]byte, lcs [][]int) []Line {
	var ops []Line

	i, j := len(oldLines), len(newLines)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			ops = append(ops, Line{Type: Context, Content: string(oldLines[i-1]), OldNum: i, NewNum: j})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			ops = append(ops, Line{Type: Addition, Content: string(newLines[j-1]), OldNum: i, NewNum: j})
			j--
		default:
			ops = append(ops, Line{Type: Deletion, Content: string(oldLines[i-1]), OldNum: i, NewNum: j})
			i--
		}
	}

	for a, b := 0, len(ops)-1; a < b; a, b = a+1, b-1 {
		ops[a], ops[b] = ops[b], ops[a]
	}
	return ops
}

// buildHunks groups changes into hunks, attaching up to contextLines of
// context on each side and merging groups whose gaps are smaller than
// two context windows.
func (e *Engine) buildHunks(ops []Line) []Hunk {
	n := e.contextLines

	type span struct{ start, end int }
	var spans []span
	for i, op := range ops {
		if op.Type == Context {
			continue
		}
		if len(spans) > 0 && i-spans[len(spans)-1].end <= 2*n {
			spans[len(spans)-1].end = i + 1
		} else {
			spans = append(spans, span{start: i, end: i + 1})
		}
	}

	var hunks []Hunk
	for _, sp := range spans {
		start := max(0, sp.start-n)
		end := min(len(ops), sp.end+n)

		hunk := Hunk{Lines: ops[start:end]}
		for _, line := range hunk.Lines {
			switch line.Type {
			case Context:
				hunk.OldLines++
				hunk.NewLines++
			case Deletion:
				hunk.OldLines++
			case Addition:
				hunk.NewLines++
			}
		}
		hunk.OldStart = ops[start].OldNum
		hunk.NewStart = ops[start].NewNum
		if hunk.OldLines > 0 && ops[start].Type == Addition {
			hunk.OldStart++
		}
		if hunk.NewLines > 0 && ops[start].Type == Deletion {
			hunk.NewStart++
		}
		hunks = append(hunks, hunk)
	}
	return hunks
}

// Format renders the hunks without file headers.
func (r *Result) Format() string {
	var buf bytes.Buffer
	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteByte('+')
			case Deletion:
				buf.WriteByte('-')
			case Context:
				buf.WriteByte(' ')
			}
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// Unified renders a unified diff with a/ and b/ file headers, the text
// shape annotation consumers expect.
func (e *Engine) Unified(path string, oldContent, newContent []byte) string {
	result := e.Diff(oldContent, newContent)
	if len(result.Hunks) == 0 {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- a/%s\n", path)
	fmt.Fprintf(&buf, "+++ b/%s\n", path)
	buf.WriteString(result.Format())
	return buf.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
