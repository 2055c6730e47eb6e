package main

// ============================================================================
// frtrace entry point
// ============================================================================
//
// All command logic lives in internal/cli. main only recovers from panics
// and maps errors to the exit status.
//
// Build:
//   go build -o bin/frtrace ./cmd/frtrace
//   go build -ldflags "-X github.com/ChuLiYu/frtrace/internal/cli.Version=1.0.0" ./cmd/frtrace
//
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/frtrace/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
