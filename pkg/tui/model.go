// Package tui is the terminal frontend: a tab bar, the active tab's
// transcript, and an input line, all driven by store notifications.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/glamour/v2"
	"charm.land/lipgloss/v2"

	"github.com/tabchat/tabchat/pkg/queue"
	"github.com/tabchat/tabchat/pkg/tabs"
)

// storeChangedMsg signals that the store completed a mutation.
type storeChangedMsg struct{}

// Model is the top-level bubbletea model.
type Model struct {
	store   *tabs.Store
	changes <-chan struct{}

	viewport  viewport.Model
	textInput textinput.Model
	renderer  *glamour.TermRenderer

	width  int
	height int
	ready  bool

	// transient is a one-shot local notice, e.g. a queue rejection.
	transient string
}

// New creates the TUI over an already-wired store. The returned cleanup func
// must run on exit.
func New(store *tabs.Store) (*Model, func()) {
	ti := textinput.New()
	ti.Placeholder = "Type a message…"
	ti.Focus()
	ti.CharLimit = 0
	ti.Prompt = inputPromptStyle.Render("> ")
	ti.SetVirtualCursor(true)

	changes, unsubscribe := store.Subscribe()

	return &Model{
		store:     store,
		changes:   changes,
		viewport:  viewport.New(),
		textInput: ti,
	}, unsubscribe
}

// waitForChange blocks on the store's notification channel.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return storeChangedMsg{}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChange())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(max(msg.Height-4, 1))
		m.textInput.SetWidth(msg.Width - 2)
		m.renderer = newRenderer(msg.Width - 2)
		m.ready = true
		m.refresh()
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case tea.KeyPressMsg:
		if handled, cmd := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyPressMsg) (bool, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return true, tea.Quit

	case "ctrl+t":
		active, _ := m.store.ActiveTab()
		m.store.CreateTab(active.Profile, active.Project)
		return true, nil

	case "ctrl+w":
		if err := m.store.CloseTab(m.store.ActiveID()); err != nil {
			m.setTransient(err)
		}
		return true, nil

	case "ctrl+n":
		m.cycleTab(1)
		return true, nil

	case "ctrl+p":
		m.cycleTab(-1)
		return true, nil

	case "esc":
		active, ok := m.store.ActiveTab()
		if !ok {
			return true, nil
		}
		if active.Err != "" {
			m.store.ClearError(active.ID)
		} else if active.Streaming {
			if err := m.store.StopGeneration(active.ID); err != nil {
				m.setTransient(err)
			}
		}
		return true, nil

	case "enter":
		prompt := strings.TrimSpace(m.textInput.Value())
		if prompt == "" {
			return true, nil
		}
		m.textInput.Reset()
		m.transient = ""
		if err := m.store.SendMessage(m.store.ActiveID(), prompt); err != nil {
			m.setTransient(err)
		}
		return true, nil
	}
	return false, nil
}

func (m *Model) cycleTab(delta int) {
	all := m.store.Tabs()
	if len(all) < 2 {
		return
	}
	active := m.store.ActiveID()
	for i, tab := range all {
		if tab.ID == active {
			next := (i + delta + len(all)) % len(all)
			m.store.SetActiveTab(all[next].ID)
			return
		}
	}
}

func (m *Model) setTransient(err error) {
	if errors.Is(err, queue.ErrAlreadyQueued) {
		m.transient = "a message is already queued; wait for the current reply"
		return
	}
	m.transient = err.Error()
}

// refresh re-renders the active tab into the viewport.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	active, ok := m.store.ActiveTab()
	if !ok {
		return
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(active, m.renderer))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() tea.View {
	if !m.ready {
		view := tea.NewView("Loading…")
		view.AltScreen = true
		return view
	}

	active, _ := m.store.ActiveTab()

	status := renderStatus(active)
	if m.transient != "" {
		status = errorStyle.Render(m.transient)
	} else if active.Err != "" {
		status = errorStyle.Render(active.Err + "  (esc to dismiss)")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTabBar(),
		m.viewport.View(),
		m.textInput.View(),
		status,
	)

	view := tea.NewView(content)
	view.AltScreen = true
	view.WindowTitle = "tabchat"
	return view
}

func (m *Model) renderTabBar() string {
	all := m.store.Tabs()
	activeID := m.store.ActiveID()

	parts := make([]string, 0, len(all))
	for i, tab := range all {
		title := tab.Title
		if title == "" {
			title = fmt.Sprintf("tab %d", i+1)
		}
		if tab.Streaming {
			title = "● " + title
		}

		style := tabStyle
		switch {
		case tab.ID == activeID:
			style = activeTabStyle
		case tab.Streaming:
			style = streamingTabStyle
		}
		parts = append(parts, style.Render(title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}
