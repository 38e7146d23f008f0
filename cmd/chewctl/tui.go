package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chewbridge/internal/engine"
	"chewbridge/internal/protocol"
)

const maxCommits = 8

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	layoutStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	zhuyinStyle  = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("81"))
	candStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	indexStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(10)
	commitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	phraseJoiner = indexStyle.Render(" | ")
)

type replyMsg string

type connErrMsg struct{ err error }

// model renders one bridge session and forwards keystrokes to it.
type model struct {
	conn conn

	state     *protocol.Context
	layout    string
	layoutIdx int
	commits   []string
	status    string
	err       error
	width     int
}

func newModel(c conn) model {
	return model{
		conn:   c,
		state:  &protocol.Context{},
		layout: engine.LayoutIDs[engine.LayoutDefault],
	}
}

func (m model) Init() tea.Cmd {
	return m.receive()
}

func (m model) receive() tea.Cmd {
	c := m.conn
	return func() tea.Msg {
		text, err := c.Next(context.Background())
		if err != nil {
			return connErrMsg{err}
		}
		return replyMsg(text)
	}
}

func (m model) send(text string) tea.Cmd {
	c := m.conn
	return func() tea.Msg {
		if err := c.Send(text); err != nil {
			return connErrMsg{err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlL:
			m.layoutIdx = (m.layoutIdx + 1) % len(engine.LayoutIDs)
			return m, m.send(protocol.LayoutCommand(engine.LayoutIDs[m.layoutIdx]))
		}
		name, ok := keyName(msg)
		if !ok {
			return m, nil
		}
		return m, m.send(protocol.KeyCommand(name))

	case replyMsg:
		m.apply(string(msg))
		return m, m.receive()

	case connErrMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one outbound message into the view.
func (m *model) apply(msg string) {
	kind, payload := protocol.ParseOutbound(msg)
	switch kind {
	case protocol.KindContext:
		state, err := protocol.DecodeContext(payload)
		if err != nil {
			m.status = err.Error()
			return
		}
		m.state = state
		m.status = ""
		if state.Commit != nil && *state.Commit != "" {
			m.commits = append(m.commits, *state.Commit)
			if len(m.commits) > maxCommits {
				m.commits = m.commits[len(m.commits)-maxCommits:]
			}
		}
	case protocol.KindLayout:
		p, err := protocol.DecodeLayout(payload)
		if err != nil {
			m.status = err.Error()
			return
		}
		m.layout = p.Layout
		m.status = "layout " + p.Layout
	case protocol.KindDebug:
		m.status = payload
	default:
		m.status = "unexpected message: " + msg
	}
}

// keyName maps a terminal key to the name used in a key: command.
func keyName(k tea.KeyMsg) (string, bool) {
	switch k.Type {
	case tea.KeyRunes:
		if len(k.Runes) != 1 || k.Alt {
			return "", false
		}
		return string(k.Runes), true
	case tea.KeySpace:
		return "Space", true
	case tea.KeyEnter:
		return "Enter", true
	case tea.KeyBackspace:
		return "Backspace", true
	case tea.KeyEsc:
		return "Esc", true
	case tea.KeyTab:
		return "Tab", true
	case tea.KeyLeft:
		return "Left", true
	case tea.KeyRight:
		return "Right", true
	case tea.KeyUp:
		return "Up", true
	case tea.KeyDown:
		return "Down", true
	case tea.KeyHome:
		return "Home", true
	case tea.KeyEnd:
		return "End", true
	case tea.KeyPgUp:
		return "PageUp", true
	case tea.KeyPgDown:
		return "PageDown", true
	case tea.KeyDelete:
		return "Delete", true
	}
	return "", false
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("chewbridge"))
	b.WriteString(" ")
	b.WriteString(layoutStyle.Render("[" + m.layout + "]"))
	b.WriteString("\n")

	box := boxStyle
	if m.width > 4 {
		box = box.Width(m.width - 2)
	}
	b.WriteString(box.Render(m.renderPreedit()))
	b.WriteString("\n")

	if cands := m.renderCandidates(); cands != "" {
		b.WriteString(cands)
		b.WriteString("\n")
	}
	if m.state.Lcch != nil && len(*m.state.Lcch) > 0 {
		b.WriteString(labelStyle.Render("phrases"))
		b.WriteString(strings.Join(*m.state.Lcch, phraseJoiner))
		b.WriteString("\n")
	}
	if m.state.Aux != nil && *m.state.Aux != "" {
		b.WriteString(labelStyle.Render("aux"))
		b.WriteString(*m.state.Aux)
		b.WriteString("\n")
	}
	if len(m.commits) > 0 {
		b.WriteString(labelStyle.Render("committed"))
		b.WriteString(commitStyle.Render(strings.Join(m.commits, " ")))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("ctrl+l next layout · ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

// renderPreedit shows the buffer with the bopomofo underlined and the
// cursor cell reversed.
func (m model) renderPreedit() string {
	text, cursor := m.state.Preedit()
	runes := []rune(text)
	zhuyin := 0
	if m.state.Bopomofo != nil {
		zhuyin = len([]rune(*m.state.Bopomofo))
	}
	start := cursor - zhuyin

	var b strings.Builder
	b.WriteString(string(runes[:start]))
	if zhuyin > 0 {
		b.WriteString(zhuyinStyle.Render(string(runes[start:cursor])))
	}
	if cursor < len(runes) {
		b.WriteString(cursorStyle.Render(string(runes[cursor])))
		b.WriteString(string(runes[cursor+1:]))
	} else {
		b.WriteString(cursorStyle.Render(" "))
	}
	return b.String()
}

func (m model) renderCandidates() string {
	if m.state.Cand == nil || len(*m.state.Cand) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*m.state.Cand)+1)
	for i, c := range *m.state.Cand {
		parts = append(parts, indexStyle.Render(fmt.Sprintf("%d.", i+1))+candStyle.Render(c))
	}
	if m.state.CandTotalPage != nil && m.state.CandCurrentPage != nil && *m.state.CandTotalPage > 1 {
		parts = append(parts, indexStyle.Render(fmt.Sprintf("%d/%d", *m.state.CandCurrentPage+1, *m.state.CandTotalPage)))
	}
	return strings.Join(parts, " ")
}
