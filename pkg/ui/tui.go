package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/paircall/paircall/internal/app"
	appevents "github.com/paircall/paircall/internal/app_events"
	"github.com/paircall/paircall/pkg/discovery"
)

type Mode int

const (
	None Mode = iota
	// Relay exchanges signaling over a relay server, with peers picked from
	// the LAN address book or typed in by id.
	Relay
	// Optical exchanges signaling by showing and scanning codes; no server
	// involved.
	Optical
)

// connectFailedMsg reports that the relay connection attempt died.
type connectFailedMsg struct {
	err error
}

type model struct {
	mode Mode
	orch *app.Orchestrator

	subID int
	msgs  <-chan appevents.Message

	relay   relayModel
	optical opticalModel
}

func InitialModel(m Mode, orch *app.Orchestrator) model {
	subID, msgs := orch.Subscribe(32)

	md := model{
		mode:  m,
		orch:  orch,
		subID: subID,
		msgs:  msgs,
	}
	switch m {
	case Relay:
		md.relay = initRelayModel()
	case Optical:
		md.optical = initOpticalModel()
	}
	return md
}

func (m model) Init() tea.Cmd {
	switch m.mode {
	case Relay:
		return tea.Batch(m.connectRelay(), m.initRelay())
	case Optical:
		return m.initOptical()
	default:
		return nil
	}
}

// listenForAppMessages is a command that listens for messages from the
// orchestrator.
func (m *model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return <-m.msgs
	}
}

// connectRelay dials the relay and kicks off LAN discovery in the background.
func (m *model) connectRelay() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx := context.Background()
		if err := orch.ConnectRelay(ctx); err != nil {
			return connectFailedMsg{err: err}
		}
		orch.StartDiscovery(ctx, &discovery.MDNSAdapter{})
		return nil
	}
}

func (m model) View() string {
	var s string
	switch m.mode {
	case Relay:
		s = m.relayView()
	case Optical:
		s = m.opticalView()
	default:
		return ""
	}
	s += "\nPress ctrl + c to quit"
	return s
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyCtrlC {
		m.orch.Unsubscribe(m.subID)
		return m, tea.Quit
	}

	switch m.mode {
	case Relay:
		return m.updateRelay(msg)
	case Optical:
		return m.updateOptical(msg)
	}
	return m, nil
}
