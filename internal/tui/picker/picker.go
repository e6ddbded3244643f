// Package picker is a single-choice list for selecting a configured queue
// when `lanes queue push` is run without one.
package picker

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user quits without choosing.
var ErrCancelled = errors.New("selection cancelled")

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

// Choice is one selectable queue.
type Choice struct {
	Key    string
	Detail string
}

func (c Choice) Title() string       { return c.Key }
func (c Choice) FilterValue() string { return c.Key }
func (c Choice) Description() string {
	if c.Detail == "" {
		return fmt.Sprintf("Push onto %s", c.Key)
	}
	return c.Detail
}

type model struct {
	list     list.Model
	choice   string
	quitting bool
}

// New builds a picker model over choices.
func New(title string, choices []Choice) tea.Model {
	items := make([]list.Item, 0, len(choices))
	for _, c := range choices {
		items = append(items, c)
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return model{list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		// Let the list own keys while the filter prompt is open.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if c, ok := m.list.SelectedItem().(Choice); ok {
				m.choice = c.Key
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.choice != "" {
		return quitTextStyle.Render(fmt.Sprintf("Queue: %s", m.choice))
	}
	return "\n" + m.list.View()
}

// Selected returns the chosen key of a finished picker model.
func Selected(m tea.Model) (string, error) {
	pm, ok := m.(model)
	if !ok || pm.quitting || pm.choice == "" {
		return "", ErrCancelled
	}
	return pm.choice, nil
}

// Run shows the picker on the terminal and returns the chosen key.
func Run(title string, choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("no queues configured")
	}
	final, err := tea.NewProgram(New(title, choices), tea.WithAltScreen()).Run()
	if err != nil {
		return "", err
	}
	return Selected(final)
}
