package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	app "github.com/valter-silva-au/chatrange/internal"
	"github.com/valter-silva-au/chatrange/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// ANTHROPIC_API_KEY may live in a .env file next to the config.
	_ = godotenv.Load()

	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	a, err := app.NewApp(basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing chatrange: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	_ = a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
