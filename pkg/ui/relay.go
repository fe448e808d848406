package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/paircall/paircall/internal/app_events"
	"github.com/paircall/paircall/internal/style"
	"github.com/paircall/paircall/pkg/call"
	"github.com/paircall/paircall/pkg/discovery"
)

// relayState defines the different states of the relay-mode UI.
type relayState int

const (
	connectingToRelay relayState = iota
	pickingPeer
	calling
	ringing
	inCall
	callOver
	relayFailed
)

type relayModel struct {
	state   relayState
	spinner spinner.Model
	table   table.Model
	input   textinput.Model

	peers     []discovery.Peer
	peerID    string
	status    string
	endReason string
	lastError error
}

type KeyMap struct {
	Accept key.Binding
	Reject key.Binding
	HangUp key.Binding
}

// DefaultKeyMap provides sensible default keybindings.
var DefaultKeyMap = KeyMap{
	Accept: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "Accept")),
	Reject: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "Reject")),
	HangUp: key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "Hang up")),
}

var peerColumns = []table.Column{
	{Title: "Index", Width: 10},
	{Title: "Peer", Width: 30},
}

func initRelayModel() relayModel {
	t := table.New(
		table.WithColumns(peerColumns),
		table.WithRows([]table.Row{}),
		table.WithFocused(false),
		table.WithHeight(0),
	)
	t.SetStyles(style.NewTableStyles())

	in := textinput.New()
	in.Placeholder = "peer id"
	in.Focus()

	return relayModel{
		state:   connectingToRelay,
		spinner: style.NewSpinner(),
		table:   t,
		input:   in,
	}
}

func (m *model) initRelay() tea.Cmd {
	return tea.Batch(m.relay.spinner.Tick, textinput.Blink, m.listenForAppMessages())
}

func (m *model) updatePeerTable(peers []discovery.Peer) {
	m.relay.peers = peers
	rows := []table.Row{}
	for index, p := range peers {
		rows = append(rows, table.Row{strconv.Itoa(index), p.ID})
	}
	m.relay.table.SetRows(rows)
	m.relay.table.SetHeight(len(rows) + 1)
}

func (m *model) updateRelay(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleRelayAppEvent(msg); processed {
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.relay.state {
	case pickingPeer:
		cmd = m.updatePickingPeer(msg)
	case ringing:
		cmd = m.updateRinging(msg)
	case calling, inCall:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && key.Matches(keyMsg, DefaultKeyMap.HangUp) {
			m.orch.End()
		}
	case callOver:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
			m.relay.state = pickingPeer
			m.relay.endReason = ""
			m.relay.lastError = nil
		}
	case relayFailed:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
			m.relay.state = connectingToRelay
			m.relay.lastError = nil
			return m, tea.Batch(m.connectRelay(), m.relay.spinner.Tick)
		}
	}

	var spinCmd tea.Cmd
	m.relay.spinner, spinCmd = m.relay.spinner.Update(msg)
	return m, tea.Batch(cmd, spinCmd)
}

func (m *model) handleRelayAppEvent(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case connectFailedMsg:
		m.relay.state = relayFailed
		m.relay.lastError = msg.err
		return nil, true
	case appevents.RegisteredMsg:
		if !msg.OK {
			m.relay.state = relayFailed
			m.relay.lastError = fmt.Errorf("relay refused this id, pick another one")
		} else if m.relay.state == connectingToRelay {
			m.relay.state = pickingPeer
		}
		return m.listenForAppMessages(), true
	case appevents.PeersUpdatedMsg:
		m.updatePeerTable(msg.Peers)
		return m.listenForAppMessages(), true
	case appevents.IncomingCallMsg:
		m.relay.peerID = msg.PeerID
		m.relay.state = ringing
		return m.listenForAppMessages(), true
	case appevents.StateChangedMsg:
		m.onCallState(msg.State)
		return m.listenForAppMessages(), true
	case appevents.ConnectivityMsg:
		m.relay.status = msg.State.String()
		return m.listenForAppMessages(), true
	case appevents.CallEndedMsg:
		m.relay.state = callOver
		m.relay.endReason = msg.Reason
		return m.listenForAppMessages(), true
	case appevents.ErrorMsg:
		m.relay.lastError = fmt.Errorf("%s: %s", msg.Kind, msg.Message)
		return m.listenForAppMessages(), true
	}
	return nil, false
}

func (m *model) onCallState(st call.State) {
	switch st {
	case call.Creating, call.AwaitingRemote, call.Negotiating:
		if m.relay.state != ringing {
			m.relay.state = calling
		}
	case call.Connected:
		m.relay.state = inCall
	}
}

func (m *model) updatePickingPeer(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			peer := m.relay.input.Value()
			if peer == "" && len(m.relay.peers) > 0 {
				cursor := m.relay.table.Cursor()
				if cursor >= 0 && cursor < len(m.relay.peers) {
					peer = m.relay.peers[cursor].ID
				}
			}
			if peer != "" {
				m.relay.peerID = peer
				m.orch.StartCall(peer)
			}
			return nil
		case tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.relay.table, cmd = m.relay.table.Update(msg)
			return cmd
		}
	}

	var cmd tea.Cmd
	m.relay.input, cmd = m.relay.input.Update(msg)
	return cmd
}

func (m *model) updateRinging(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(keyMsg, DefaultKeyMap.Accept):
		m.orch.Accept()
	case key.Matches(keyMsg, DefaultKeyMap.Reject):
		m.orch.Decline()
	}
	return nil
}

func (m *model) relayView() string {
	switch m.relay.state {
	case connectingToRelay:
		return fmt.Sprintf("\n%s Connecting to relay...", m.relay.spinner.View())
	case pickingPeer:
		s := "\nWho do you want to call?\n\n"
		s += m.relay.input.View() + "\n"
		if len(m.relay.peers) > 0 {
			s += "\nNearby:\n"
			s += style.BaseStyle.Render(m.relay.table.View()) + "\n"
			s += style.HelpStyle.Render("Arrow keys to pick, Enter to call.")
		}
		if m.relay.lastError != nil {
			s += "\n" + style.ErrorStyle.Render(m.relay.lastError.Error())
		}
		return s
	case calling:
		return fmt.Sprintf("\n%s Calling %s...", m.relay.spinner.View(), style.HighlightFontStyle.Render(m.relay.peerID))
	case ringing:
		help := fmt.Sprintf("%s/%s  %s/%s",
			DefaultKeyMap.Accept.Help().Key, DefaultKeyMap.Accept.Help().Desc,
			DefaultKeyMap.Reject.Help().Key, DefaultKeyMap.Reject.Help().Desc,
		)
		return fmt.Sprintf("\nIncoming call from %s\n\n%s",
			style.HighlightFontStyle.Render(m.relay.peerID), style.HelpStyle.Render(help))
	case inCall:
		s := fmt.Sprintf("\n%s In call with %s",
			style.ConnectedStyle.Render("Connected."), style.HighlightFontStyle.Render(m.relay.peerID))
		if m.relay.status != "" {
			s += "\n" + style.StatusStyle.Render("link: "+m.relay.status)
		}
		s += "\n" + style.HelpStyle.Render(fmt.Sprintf("%s/%s", DefaultKeyMap.HangUp.Help().Key, DefaultKeyMap.HangUp.Help().Desc))
		return s
	case callOver:
		return fmt.Sprintf("\nCall ended: %s\n\nPress Enter to make another call.", m.relay.endReason)
	case relayFailed:
		reason := "unknown error"
		if m.relay.lastError != nil {
			reason = m.relay.lastError.Error()
		}
		return fmt.Sprintf("\n%s\n\nPress Enter to retry.", style.ErrorStyle.Render(reason))
	default:
		return "Internal error: unknown relay state"
	}
}
