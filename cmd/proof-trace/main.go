package main

// proof-trace steps through every sentence in a .v file and prints what
// the prover reported for each one. For debugging.

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/sanjit/pieuvre-mcp/internal/config"
	"github.com/sanjit/pieuvre-mcp/internal/pieuvre"
)

func main() {
	psi.Run(run)
}

func run(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: proof-trace <file.v> [-- prover flags...]\n")
		return 1
	}

	file := os.Args[1]
	var extraArgs []string
	for i, arg := range os.Args[2:] {
		if arg == "--" {
			extraArgs = os.Args[i+3:]
			break
		}
	}

	cfg, err := config.Load(os.Getenv("PIEUVRE_CONFIG"))
	if err != nil {
		logger.Error("config", "error", err)
		return 1
	}
	content, err := os.ReadFile(file)
	if err != nil {
		logger.Error("read", "file", file, "error", err)
		return 1
	}
	text := string(content)

	session := pieuvre.NewSession(pieuvre.SessionConfig{
		Factory: func() pieuvre.Commander {
			return pieuvre.NewClient(pieuvre.ClientConfig{
				Path:              cfg.ProverPath,
				Args:              append(append([]string(nil), cfg.ProverArgs...), extraArgs...),
				Tags:              pieuvre.Tags{Ready: cfg.ReadyTag, Begin: cfg.BeginTag, End: cfg.EndTag, Error: cfg.ErrorTag},
				TranscriptEntries: cfg.TranscriptLines,
				Logger:            logger,
			})
		},
		Logger:         logger,
		StartTimeout:   cfg.StartTimeout,
		CommandTimeout: cfg.CommandTimeout,
	})
	defer func() { _ = session.Close() }()

	step := 0
	for {
		before := session.PositionStatus()
		if err := session.StepForward(ctx, text, 1); err != nil {
			logger.Error("step forward", "error", err)
			return 1
		}
		after := session.PositionStatus()

		if f := session.Failure(); f != nil {
			step++
			fmt.Printf("=== Step %d ===\n> %s\n\nRejected: %s\n\n", step, f.Sentence.Text, f.Message)
			break
		}
		if after.Current == before.Current {
			break
		}
		step++

		verified := session.Verified()
		var sb strings.Builder
		pieuvre.WriteEntry(&sb, len(verified)-1, verified[len(verified)-1])
		fmt.Printf("=== Step %d ===\n", step)
		fmt.Print(strings.TrimPrefix(sb.String(), fmt.Sprintf("=== Sentence %d ===\n", len(verified))))
		fmt.Println()
	}

	var sb strings.Builder
	pieuvre.FormatDiagnostics(&sb, session.Diagnostics())
	fmt.Print(sb.String())
	fmt.Printf("--- Done: %d steps (%s) ---\n", step, pieuvre.FormatStatus(session.PositionStatus()))
	return 0
}
