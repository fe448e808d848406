package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/paircall/paircall/internal/app_events"
	"github.com/paircall/paircall/internal/style"
	"github.com/paircall/paircall/pkg/call"
	"github.com/paircall/paircall/pkg/qr"
)

// opticalState defines the different states of the optical-mode UI.
type opticalState int

const (
	choosingAction opticalState = iota
	showingCode
	enteringCode
	opticalRinging
	opticalInCall
	opticalOver
)

type opticalModel struct {
	state opticalState
	input textinput.Model

	symbol     string
	rawCode    string
	degraded   bool
	simplified bool

	status    string
	endReason string
	lastError error
}

type opticalKeyMap struct {
	Generate key.Binding
	Scan     key.Binding
}

var opticalKeys = opticalKeyMap{
	Generate: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "Generate a call code")),
	Scan:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Scan a code")),
}

func initOpticalModel() opticalModel {
	in := textinput.New()
	in.Placeholder = "paste scanned code"
	in.CharLimit = 0
	return opticalModel{state: choosingAction, input: in}
}

func (m *model) initOptical() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForAppMessages())
}

func (m *model) updateOptical(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleOpticalAppEvent(msg); processed {
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateOpticalInput(msg)
	}

	switch m.optical.state {
	case choosingAction:
		switch {
		case key.Matches(keyMsg, opticalKeys.Generate):
			m.orch.GenerateCode()
		case key.Matches(keyMsg, opticalKeys.Scan):
			m.optical.state = enteringCode
			m.optical.input.Focus()
		}
	case showingCode:
		// The peer's answer comes back the same way: scanned.
		if key.Matches(keyMsg, opticalKeys.Scan) {
			m.optical.state = enteringCode
			m.optical.input.Focus()
		}
	case enteringCode:
		switch keyMsg.Type {
		case tea.KeyEnter:
			raw := m.optical.input.Value()
			if raw != "" {
				m.optical.input.Reset()
				m.orch.ScanCode(raw)
			}
			return m, nil
		case tea.KeyEsc:
			m.optical.state = choosingAction
			m.optical.input.Blur()
			return m, nil
		}
		return m.updateOpticalInput(msg)
	case opticalRinging:
		switch {
		case key.Matches(keyMsg, DefaultKeyMap.Accept):
			m.orch.Accept()
		case key.Matches(keyMsg, DefaultKeyMap.Reject):
			m.orch.Decline()
		}
	case opticalInCall:
		if key.Matches(keyMsg, DefaultKeyMap.HangUp) {
			m.orch.End()
		}
	case opticalOver:
		if keyMsg.Type == tea.KeyEnter {
			m.optical = initOpticalModel()
		}
	}
	return m, nil
}

func (m *model) updateOpticalInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.optical.input, cmd = m.optical.input.Update(msg)
	return m, cmd
}

func (m *model) handleOpticalAppEvent(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case appevents.CodeReadyMsg:
		m.optical.rawCode = msg.Code
		m.optical.simplified = msg.Simplified
		m.optical.degraded = msg.Degraded
		symbol, err := qr.Terminal(msg.Code)
		if err != nil {
			m.optical.lastError = err
			m.optical.symbol = ""
		} else {
			m.optical.symbol = symbol
		}
		m.optical.state = showingCode
		return m.listenForAppMessages(), true
	case appevents.IncomingCallMsg:
		m.optical.state = opticalRinging
		return m.listenForAppMessages(), true
	case appevents.StateChangedMsg:
		if msg.State == call.Connected {
			m.optical.state = opticalInCall
		}
		return m.listenForAppMessages(), true
	case appevents.ConnectivityMsg:
		m.optical.status = msg.State.String()
		return m.listenForAppMessages(), true
	case appevents.CallEndedMsg:
		m.optical.state = opticalOver
		m.optical.endReason = msg.Reason
		return m.listenForAppMessages(), true
	case appevents.ErrorMsg:
		m.optical.lastError = fmt.Errorf("%s: %s", msg.Kind, msg.Message)
		return m.listenForAppMessages(), true
	}
	return nil, false
}

func (m *model) opticalView() string {
	switch m.optical.state {
	case choosingAction:
		s := "\nCall without a server:\n\n"
		s += fmt.Sprintf("  %s/%s\n", opticalKeys.Generate.Help().Key, opticalKeys.Generate.Help().Desc)
		s += fmt.Sprintf("  %s/%s\n", opticalKeys.Scan.Help().Key, opticalKeys.Scan.Help().Desc)
		if m.optical.lastError != nil {
			s += "\n" + style.ErrorStyle.Render(m.optical.lastError.Error())
		}
		return s
	case showingCode:
		s := "\n" + style.TitleStyle.Render("Have your peer scan this code:") + "\n"
		if m.optical.symbol != "" {
			s += m.optical.symbol
		} else {
			s += m.optical.rawCode + "\n"
		}
		if m.optical.degraded {
			s += style.ErrorStyle.Render("The offer did not fit; this code is a stub and the call will not connect.") + "\n"
		} else if m.optical.simplified {
			s += style.StatusStyle.Render("Code was trimmed to fit; connectivity may be reduced.") + "\n"
		}
		s += style.HelpStyle.Render(fmt.Sprintf("%s/%s", opticalKeys.Scan.Help().Key, "Scan their reply"))
		return s
	case enteringCode:
		s := "\nPaste the scanned code and press Enter:\n\n"
		s += m.optical.input.View() + "\n"
		if m.optical.lastError != nil {
			s += "\n" + style.ErrorStyle.Render(m.optical.lastError.Error())
		}
		s += "\n" + style.HelpStyle.Render("Esc to go back.")
		return s
	case opticalRinging:
		help := fmt.Sprintf("%s/%s  %s/%s",
			DefaultKeyMap.Accept.Help().Key, DefaultKeyMap.Accept.Help().Desc,
			DefaultKeyMap.Reject.Help().Key, DefaultKeyMap.Reject.Help().Desc,
		)
		return fmt.Sprintf("\nScanned an incoming call offer.\n\n%s", style.HelpStyle.Render(help))
	case opticalInCall:
		s := "\n" + style.ConnectedStyle.Render("Connected.")
		if m.optical.status != "" {
			s += "\n" + style.StatusStyle.Render("link: "+m.optical.status)
		}
		s += "\n" + style.HelpStyle.Render(fmt.Sprintf("%s/%s", DefaultKeyMap.HangUp.Help().Key, DefaultKeyMap.HangUp.Help().Desc))
		return s
	case opticalOver:
		return fmt.Sprintf("\nCall ended: %s\n\nPress Enter to start over.", m.optical.endReason)
	default:
		return "Internal error: unknown optical state"
	}
}
