package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paircall/paircall/internal/app"
	"github.com/paircall/paircall/pkg/call"
	"github.com/paircall/paircall/pkg/codec"
	"github.com/paircall/paircall/pkg/engine"
	"github.com/paircall/paircall/pkg/qr"
	"github.com/paircall/paircall/pkg/ui"
)

func main() {
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	var localID string
	var relayURL string

	cmd := &cobra.Command{
		Use:   "paircall",
		Short: "Peer-to-peer audio/video calls from the terminal",
	}

	cmd.PersistentFlags().StringVar(&localID, "id", "", "Identity announced to peers (default: random)")

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Call peers by id through a relay server",
		Run: func(cmd *cobra.Command, args []string) {
			runUI(ui.Relay, localID, relayURL)
		},
	}
	relayCmd.Flags().StringVar(&relayURL, "url", "ws://localhost:8080/ws", "Relay WebSocket endpoint")

	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Call a nearby peer by exchanging scannable codes, no server needed",
		Run: func(cmd *cobra.Command, args []string) {
			runUI(ui.Optical, localID, "")
		},
	}

	cmd.AddCommand(relayCmd)
	cmd.AddCommand(codeCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func runUI(mode ui.Mode, localID, relayURL string) {
	if localID == "" {
		localID = uuid.NewString()[:8]
	}

	orch := app.New(app.Config{
		LocalID:  localID,
		RelayURL: relayURL,
		Call:     call.DefaultConfig(),
		Codec:    codec.Config{CapacityBytes: qr.CapacityBytes},
		Engine:   engine.DefaultEngineConfig(),
	}, nil)
	defer orch.Close()

	model := ui.InitialModel(mode, orch)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
