package engine

import (
	"crypto/sha1"
	"strings"
)

// DefaultDuplicationWindow is the number of normalized code lines per window
const DefaultDuplicationWindow = 6

type duplication struct {
	Blocks int
	Lines  int
}

// detectDuplication slides a window of normalized code lines across the
// file. Every repeat of an already seen window is one duplicated block;
// each line covered by a repeated window (first occurrence included)
// counts once toward duplicated lines.
func detectDuplication(lines []string, kinds []lineKind, window int) duplication {
	if window <= 0 {
		window = DefaultDuplicationWindow
	}

	type codeLine struct {
		index int
		text  string
	}
	var code []codeLine
	for i, l := range lines {
		if kinds[i] != lineCode {
			continue
		}
		code = append(code, codeLine{index: i, text: normalizeLine(l)})
	}
	if len(code) < window {
		return duplication{}
	}

	first := make(map[[sha1.Size]byte]int)
	duplicated := make(map[int]bool)
	var result duplication

	for start := 0; start+window <= len(code); start++ {
		h := sha1.New()
		for _, cl := range code[start : start+window] {
			h.Write([]byte(cl.text))
			h.Write([]byte{'\n'})
		}
		var key [sha1.Size]byte
		copy(key[:], h.Sum(nil))

		prev, seen := first[key]
		if !seen {
			first[key] = start
			continue
		}

		result.Blocks++
		for _, s := range []int{prev, start} {
			for _, cl := range code[s : s+window] {
				duplicated[cl.index] = true
			}
		}
	}

	result.Lines = len(duplicated)
	return result
}

func normalizeLine(l string) string {
	return strings.Join(strings.Fields(l), " ")
}
