package main

import (
	"os"

	"github.com/keihi-platform/api/internal/commands"
)

func main() {
	if err := commands.NewRootCommand(commands.OpenFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}
