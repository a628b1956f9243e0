package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/logger"
	"github.com/trafficwatch/backend/internal/observer"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:5000/ws", "WebSocket URL of the trafficwatch server")
	logFile := flag.String("log", "", "Write logs to this file (logs are discarded otherwise)")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	// The alt screen owns the terminal, so logs go to a file or nowhere.
	var out io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	log.Logger = zerolog.New(out).Level(logger.ParseLevel(*level)).With().Timestamp().Str("service", "observer").Logger()

	client := observer.NewClient(*wsURL)
	defer client.Close()

	p := tea.NewProgram(observer.New(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
