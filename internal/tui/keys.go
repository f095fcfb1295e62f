package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit           key.Binding
	Search         key.Binding
	FilterTool     key.Binding
	FilterSeverity key.Binding
	Sort           key.Binding
	Detail         key.Binding
	Copy           key.Binding
	ClearFilter    key.Binding
}

var keys = keyMap{
	Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Search:         key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	FilterTool:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tool")),
	FilterSeverity: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "severity")),
	Sort:           key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	Detail:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
	Copy:           key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy")),
	ClearFilter:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
}

// shortHelp renders the footer hint line from the bindings
func (k keyMap) shortHelp() string {
	bindings := []key.Binding{k.Quit, k.Search, k.FilterTool, k.FilterSeverity, k.Sort, k.Detail, k.Copy, k.ClearFilter}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}
