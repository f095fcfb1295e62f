package engine

import (
	"fmt"
	"sort"
	"strings"
)

// snippetContext is the number of lines shown on each side of a match
const snippetContext = 2

// lineIndex maps byte offsets to 1-based line/column positions.
// It stores the offset of every '\n' so a lookup is a binary search
// that yields exactly count('\n', content[:offset]).
type lineIndex struct {
	content  string
	newlines []int
}

func newLineIndex(content string) *lineIndex {
	idx := &lineIndex{content: content}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			idx.newlines = append(idx.newlines, i)
		}
	}
	return idx
}

// Position returns the line and column of offset.
// line = count('\n', content[:offset]) + 1
// column = offset - lastIndex('\n', content[:offset]), clipped to >= 1
func (idx *lineIndex) Position(offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(idx.content) {
		offset = len(idx.content)
	}

	// newlines strictly before offset
	before := sort.SearchInts(idx.newlines, offset)
	line = before + 1

	lastNL := -1
	if before > 0 {
		lastNL = idx.newlines[before-1]
	}
	column = offset - lastNL
	if column < 1 {
		column = 1
	}
	return line, column
}

// LineCount returns the number of lines in the content
func (idx *lineIndex) LineCount() int {
	if idx.content == "" {
		return 0
	}
	return len(idx.newlines) + 1
}

// Line returns the text of the 1-based line n without its terminator
func (idx *lineIndex) Line(n int) string {
	if n < 1 || n > idx.LineCount() {
		return ""
	}
	start := 0
	if n > 1 {
		start = idx.newlines[n-2] + 1
	}
	end := len(idx.content)
	if n-1 < len(idx.newlines) {
		end = idx.newlines[n-1]
	}
	return strings.TrimSuffix(idx.content[start:end], "\r")
}

// Snippet renders the lines around line, each prefixed with its number
func (idx *lineIndex) Snippet(line int) string {
	first := line - snippetContext
	if first < 1 {
		first = 1
	}
	last := line + snippetContext
	if total := idx.LineCount(); last > total {
		last = total
	}

	var b strings.Builder
	for n := first; n <= last; n++ {
		if n > first {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", n, idx.Line(n))
	}
	return b.String()
}

// Position is the exported form of the offset mapping used by Scan
func Position(content string, offset int) (line, column int) {
	return newLineIndex(content).Position(offset)
}
