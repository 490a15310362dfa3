package main

import (
	"os"

	"github.com/jonathon-love/silky/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
