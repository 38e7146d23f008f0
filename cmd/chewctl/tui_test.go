package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []string
	in   chan string
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 8)}
}

func (f *fakeConn) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConn) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg, ok := <-f.in:
		if !ok {
			return "", io.EOF
		}
		return msg, nil
	}
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeyName(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		name string
		ok   bool
	}{
		{runes("a"), "a", true},
		{runes("ㄅ"), "ㄅ", true},
		{runes("ab"), "", false},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a"), Alt: true}, "", false},
		{tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}, "Space", true},
		{tea.KeyMsg{Type: tea.KeyEnter}, "Enter", true},
		{tea.KeyMsg{Type: tea.KeyBackspace}, "Backspace", true},
		{tea.KeyMsg{Type: tea.KeyEsc}, "Esc", true},
		{tea.KeyMsg{Type: tea.KeyPgDown}, "PageDown", true},
		{tea.KeyMsg{Type: tea.KeyDelete}, "Delete", true},
		{tea.KeyMsg{Type: tea.KeyF1}, "", false},
	}
	for _, tt := range tests {
		name, ok := keyName(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key.String())
		assert.Equal(t, tt.name, name, tt.key.String())
	}
}

func TestModelSendsKeys(t *testing.T) {
	c := newFakeConn()
	m := newModel(c)

	updated, cmd := m.Update(runes("g"))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())
	m = updated.(model)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	cmd()

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyF1})
	assert.Nil(t, cmd)

	assert.Equal(t, []string{"key:g", "layout:KB_HSU"}, c.Sent())
}

func TestModelAppliesReplies(t *testing.T) {
	c := newFakeConn()
	m := newModel(c)

	c.in <- `context:{"bopomofo":"ㄕ","cursor":0,"keystroke":"ㄕ","edit_pos":0}`
	msg := m.Init()()
	require.IsType(t, replyMsg(""), msg)

	updated, cmd := m.Update(msg)
	require.NotNil(t, cmd, "keeps receiving")
	m = updated.(model)
	require.NotNil(t, m.state.Bopomofo)
	assert.Contains(t, m.View(), "ㄕ")

	updated, _ = m.Update(replyMsg(`context:{"cand":["是","事"],"cand_ChoicePerPage":2,"cand_TotalPage":3,"cand_CurrentPage":0,"buffer":"是","lcch":["是"],"cursor":0}`))
	m = updated.(model)
	view := m.View()
	assert.Contains(t, view, "是")
	assert.Contains(t, view, "1/3")
	assert.Contains(t, view, "phrases")

	updated, _ = m.Update(replyMsg(`context:{"commit":"是","cursor":0,"cch":"是","edit_pos":0}`))
	m = updated.(model)
	assert.Equal(t, []string{"是"}, m.commits)
	assert.Contains(t, m.View(), "committed")

	updated, _ = m.Update(replyMsg(`layout:{"layout":"KB_ET"}`))
	m = updated.(model)
	assert.Equal(t, "KB_ET", m.layout)
	assert.Contains(t, m.View(), "[KB_ET]")

	updated, _ = m.Update(replyMsg("debug:unrecognized command, x"))
	m = updated.(model)
	assert.Equal(t, "unrecognized command, x", m.status)
}

func TestModelKeepsRecentCommits(t *testing.T) {
	m := newModel(newFakeConn())
	for i := 0; i < maxCommits+3; i++ {
		m.apply(`context:{"commit":"字","cursor":0}`)
	}
	assert.Len(t, m.commits, maxCommits)
}

func TestModelQuits(t *testing.T) {
	m := newModel(newFakeConn())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	updated, cmd := m.Update(connErrMsg{errors.New("gone")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, updated.(model).View(), "gone")
}

func TestRenderPreeditCursor(t *testing.T) {
	m := newModel(newFakeConn())
	m.apply(`context:{"buffer":"是事","bopomofo":"ㄕ","cursor":1}`)
	out := m.renderPreedit()
	assert.Contains(t, out, "是")
	assert.Contains(t, out, "ㄕ")
	assert.Contains(t, out, "事")
}
