package main

import (
	"os"

	"github.com/eshaffer321/reconciler/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
