package tui

import (
	"fmt"
	"strings"
)

// toolPicker is the tool filter overlay. Index 0 is "All".
type toolPicker struct {
	choices []string
	cursor  int
}

func (p *toolPicker) up() {
	if p.cursor > 0 {
		p.cursor--
	}
}

func (p *toolPicker) down() {
	if p.cursor < len(p.choices) {
		p.cursor++
	}
}

// selected returns the chosen tool, "" for All
func (p *toolPicker) selected() string {
	if p.cursor == 0 || p.cursor > len(p.choices) {
		return ""
	}
	return p.choices[p.cursor-1]
}

func (p *toolPicker) view() string {
	var b strings.Builder
	b.WriteString("Filter by tool:\n")
	for i, opt := range append([]string{"All"}, p.choices...) {
		marker := "  "
		if i == p.cursor {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s\n", marker, opt)
	}
	return b.String()
}
