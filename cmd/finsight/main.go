package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danshapiro/finsight/internal/agent"
	"github.com/danshapiro/finsight/internal/capability"
	"github.com/danshapiro/finsight/internal/config"
	"github.com/danshapiro/finsight/internal/ghostfolio"
	"github.com/danshapiro/finsight/internal/server"
	"github.com/danshapiro/finsight/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "ask":
		ask(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  finsight serve [--config <finsight.yaml>]")
	fmt.Fprintln(os.Stderr, "  finsight ask <question...>")
}

func serve(args []string) {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	var opts []server.ServerOption
	if cfg.Session.MaxThreads > 0 {
		opts = append(opts, server.WithSessionStore(
			session.NewMemoryStore(session.WithMaxThreads(cfg.Session.MaxThreads)),
		))
	}

	srv := server.New(server.Config{
		Addr:          cfg.Addr,
		GhostfolioURL: cfg.Ghostfolio.BaseURL,
		Timeout:       cfg.GhostfolioTimeout(),
		ChunkSize:     cfg.Stream.ChunkSize,
		CORSOrigins:   cfg.CORSOrigins,
	}, logger, opts...)

	if err := srv.ListenAndServe(); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// ask runs a single turn against the in-memory mock portfolio and prints
// the final message. Useful for poking at routing without a running
// Ghostfolio instance.
func ask(args []string) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		usage()
		os.Exit(1)
	}

	pipeline, err := agent.NewPipeline(agent.Dependencies{
		Client:   ghostfolio.NewMockClient(),
		Registry: capability.NewDefaultRegistry(),
		Logger:   newLogger("error"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st := pipeline.RunTurn(ctx, agent.TurnInput{
		Messages: []agent.Message{{Role: "user", Text: query}},
	})
	if st.Final == nil {
		fmt.Fprintln(os.Stderr, "no response produced")
		os.Exit(1)
	}
	fmt.Println(st.Final.Message)
	if st.Final.Category == agent.CategoryError {
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
