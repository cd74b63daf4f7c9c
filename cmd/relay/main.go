package main

import (
	"fmt"
	"os"

	app "github.com/valter-silva-au/ai-dev-relay/internal"
	"github.com/valter-silva-au/ai-dev-relay/internal/cli"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	a, err := app.NewApp(basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing relay: %v\n", err)
		return core.ExitCode(err)
	}
	defer a.Close()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return core.ExitCode(err)
	}
	return core.ExitOK
}
