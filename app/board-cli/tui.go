package main

import (
	"context"
	"fmt"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tickboard/board/entities"
	"strings"
	"time"
)

type Board interface {
	GetSequence(ctx context.Context) (uint64, error)
	GetMessage(ctx context.Context) (string, error)
	GetActive(ctx context.Context) (bool, error)
	GetTickTypes(ctx context.Context) ([]entities.TickType, error)
	GetTickHistory(ctx context.Context) ([]entities.TickHistoryEntry, error)
	SetActive(ctx context.Context, active bool) error
	TriggerTick(ctx context.Context, tickType uint8) error
}

func NewTUICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive board client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newSigningClient(opts)
			if err != nil {
				return err
			}
			program := tea.NewProgram(newModel(client, opts.Timeout), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type refreshedMsg struct {
	status  *status
	history []entities.TickHistoryEntry
	err     error
}

type mutatedMsg struct {
	action string
	err    error
}

type model struct {
	board   Board
	timeout time.Duration

	status  *status
	history []entities.TickHistoryEntry
	cursor  int
	notice  string
	err     error
	busy    bool
}

func newModel(board Board, timeout time.Duration) model {
	return model{board: board, timeout: timeout, busy: true}
}

func (m model) Init() tea.Cmd {
	return m.refresh()
}

func (m model) refresh() tea.Cmd {
	board, timeout := m.board, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var (
			s   status
			msg refreshedMsg
		)
		s.Sequence, msg.err = board.GetSequence(ctx)
		if msg.err == nil {
			s.Message, msg.err = board.GetMessage(ctx)
		}
		if msg.err == nil {
			s.Active, msg.err = board.GetActive(ctx)
		}
		if msg.err == nil {
			s.TickTypes, msg.err = board.GetTickTypes(ctx)
		}
		if msg.err == nil {
			msg.history, msg.err = board.GetTickHistory(ctx)
		}
		if msg.err == nil {
			msg.status = &s
		}
		return msg
	}
}

func (m model) mutate(action string, fn func(ctx context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return mutatedMsg{action: action, err: fn(ctx)}
	}
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case refreshedMsg:
		m.busy = false
		m.err = message.err
		if message.err == nil {
			m.status = message.status
			m.history = message.history
			if m.cursor >= len(m.status.TickTypes) {
				m.cursor = max(0, len(m.status.TickTypes)-1)
			}
		}
		return m, nil

	case mutatedMsg:
		m.err = message.err
		if message.err == nil {
			m.notice = message.action
		}
		return m, m.refresh()

	case tea.KeyMsg:
		switch message.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.status != nil && m.cursor < len(m.status.TickTypes)-1 {
				m.cursor++
			}
		case "r":
			m.busy = true
			return m, m.refresh()
		case "a":
			if m.busy || m.status == nil {
				return m, nil
			}
			active := !m.status.Active
			m.busy = true
			return m, m.mutate(fmt.Sprintf("active set to %t", active), func(ctx context.Context) error {
				return m.board.SetActive(ctx, active)
			})
		case "enter", " ":
			if m.busy || m.status == nil || len(m.status.TickTypes) == 0 {
				return m, nil
			}
			selected := m.status.TickTypes[m.cursor]
			m.busy = true
			return m, m.mutate(fmt.Sprintf("recorded %s", selected.Tick), func(ctx context.Context) error {
				return m.board.TriggerTick(ctx, selected.ID)
			})
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Tick board"))
	b.WriteString("\n\n")

	if m.status == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		} else {
			b.WriteString("loading...")
		}
		b.WriteString("\n")
		return b.String()
	}

	active := inactiveStyle.Render("inactive")
	if m.status.Active {
		active = activeStyle.Render("active")
	}
	header := fmt.Sprintf("%s %s\n%s %d\n%s %s",
		labelStyle.Render("message: "), m.status.Message,
		labelStyle.Render("sequence:"), m.status.Sequence,
		labelStyle.Render("state:   "), active)
	b.WriteString(boxStyle.Render(header))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Tick types"))
	b.WriteString("\n")
	for i, tt := range m.status.TickTypes {
		line := fmt.Sprintf("%3d  %s", tt.ID, tt.Tick)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Today"))
	b.WriteString("\n")
	if len(m.history) == 0 {
		b.WriteString(labelStyle.Render("  no ticks yet"))
		b.WriteString("\n")
	}
	for _, entry := range m.history {
		b.WriteString(fmt.Sprintf("  %s  %s\n", entry.Time, m.label(entry.Tick)))
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(m.notice)
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("↑/↓ select • enter tick • a toggle active • r refresh • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) label(id uint8) string {
	for _, tt := range m.status.TickTypes {
		if tt.ID == id {
			return tt.Tick
		}
	}
	return fmt.Sprintf("#%d", id)
}
