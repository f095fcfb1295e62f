// Package tui is an interactive issue browser for a stored report.
package tui

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/codewarden/internal/models"
)

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modePickTool
	modeDetail
)

const defaultTableHeight = 15

// Model is the Bubble Tea model behind `summarize --tui`.
type Model struct {
	report *models.Report
	trend  *models.TrendSummary
	all    []models.SecurityIssue

	visible []models.SecurityIssue
	table   table.Model
	search  textinput.Model
	picker  toolPicker
	filters filterState
	sortBy  sortField
	mode    mode
	width   int
	height  int
	status  string

	// clipboard holds the last copied text; osc receives the OSC 52 escape
	clipboard string
	osc       io.Writer
}

// New builds a model over report. trend may be nil.
func New(report *models.Report, trend *models.TrendSummary) Model {
	all := make([]models.SecurityIssue, len(report.Issues))
	copy(all, report.Issues)
	sortIssues(all, sortBySeverity)

	search := textinput.New()
	search.Placeholder = "file, CWE, message..."
	search.CharLimit = 64

	return Model{
		report:  report,
		trend:   trend,
		all:     all,
		visible: all,
		table:   newTable(buildRows(all), defaultTableHeight),
		search:  search,
		picker:  toolPicker{choices: uniqueTools(all)},
		sortBy:  sortBySeverity,
		width:   80,
		height:  24,
		osc:     os.Stdout,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = size.Width, size.Height
		m.table.SetWidth(size.Width)
		m.table.SetHeight(max(size.Height-headerHeight-detailHeight-3, 3))
		return m, nil
	}

	keyMsg, isKey := msg.(tea.KeyMsg)
	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		if isKey {
			if done := m.searchKey(keyMsg); done {
				return m, nil
			}
		}
		m.search, cmd = m.search.Update(msg)
	case modePickTool:
		if isKey {
			m.pickerKey(keyMsg)
		}
	case modeDetail:
		if isKey {
			return m.detailKey(keyMsg)
		}
	default:
		if isKey {
			if handled, c := m.browseKey(keyMsg); handled {
				return m, c
			}
		}
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

// browseKey handles bindings of the table view. Unhandled keys fall
// through to the table for cursor movement.
func (m *Model) browseKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return true, tea.Quit
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		m.search.Focus()
		return true, textinput.Blink
	case key.Matches(msg, keys.FilterTool):
		m.mode = modePickTool
		m.picker.cursor = 0
	case key.Matches(msg, keys.FilterSeverity):
		m.filters.MinSeverity = nextSeverity(m.filters.MinSeverity)
		m.refresh()
		m.status = "Severity: all"
		if m.filters.MinSeverity != "" {
			m.status = "Severity: >= " + m.filters.MinSeverity
		}
	case key.Matches(msg, keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortFieldCount
		m.refresh()
		m.status = "Sort: " + sortFieldName(m.sortBy)
	case key.Matches(msg, keys.Detail):
		if m.selected() != nil {
			m.mode = modeDetail
		}
	case key.Matches(msg, keys.Copy):
		m.copySelected()
	case key.Matches(msg, keys.ClearFilter):
		m.filters = filterState{}
		m.status = ""
		m.refresh()
	default:
		return false, nil
	}
	return true, nil
}

// searchKey reports whether msg ended the search
func (m *Model) searchKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyEnter:
		m.filters.SearchText = m.search.Value()
		m.refresh()
	case tea.KeyEsc:
		m.search.SetValue("")
	default:
		return false
	}
	m.mode = modeBrowse
	m.search.Blur()
	return true
}

func (m *Model) pickerKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "up", "k":
		m.picker.up()
	case "down", "j":
		m.picker.down()
	case "enter":
		m.filters.Tool = m.picker.selected()
		m.mode = modeBrowse
		m.refresh()
		m.status = ""
		if m.filters.Tool != "" {
			m.status = "Filter: " + m.filters.Tool
		}
	case "esc":
		m.mode = modeBrowse
	}
}

func (m Model) detailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Copy):
		m.copySelected()
	case key.Matches(msg, keys.Detail), key.Matches(msg, keys.ClearFilter):
		m.mode = modeBrowse
	}
	return m, nil
}

// refresh reapplies filters and sort and keeps the cursor in range
func (m *Model) refresh() {
	m.visible = applyFilters(m.all, m.filters)
	sortIssues(m.visible, m.sortBy)
	m.table.SetRows(buildRows(m.visible))
	if m.table.Cursor() >= len(m.visible) {
		m.table.SetCursor(max(len(m.visible)-1, 0))
	}
}

func (m *Model) selected() *models.SecurityIssue {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return nil
	}
	return &m.visible[i]
}

// copySelected puts a one-line summary of the selected issue on the
// terminal clipboard through an OSC 52 escape
func (m *Model) copySelected() {
	issue := m.selected()
	if issue == nil {
		m.status = "Nothing to copy"
		return
	}
	text := fmt.Sprintf("[%s] %s %s: %s", issue.Severity, issue.ToolName, location(*issue), issue.Message)
	if issue.CWEID != "" {
		text += " (" + issue.CWEID + ")"
	}
	m.clipboard = text
	m.status = "Copied!"
	if m.osc != nil {
		fmt.Fprintf(m.osc, "\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var sparkline []int
	if m.trend != nil {
		sparkline = m.trend.IssueSparkline
	}
	sections := []string{renderHeader(m.report, sparkline, m.width)}

	if m.mode == modeDetail {
		sections = append(sections, renderFullDetail(m.selected(), m.width))
	} else {
		switch m.mode {
		case modeSearch:
			sections = append(sections, styleSearchPrompt.Render("/ ")+m.search.View())
		case modePickTool:
			sections = append(sections, m.picker.view())
		}
		sections = append(sections, m.table.View(), renderDetail(m.selected(), m.width))
	}

	sections = append(sections, m.footer())
	return strings.Join(sections, "\n")
}

func (m Model) footer() string {
	left := keys.shortHelp()
	right := fmt.Sprintf("%d/%d issues", len(m.visible), len(m.all))
	if m.status != "" {
		right = m.status + "  " + right
	}
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the browser in the alternate screen and blocks until quit.
func Run(report *models.Report, trend *models.TrendSummary) error {
	_, err := tea.NewProgram(New(report, trend), tea.WithAltScreen()).Run()
	return err
}
