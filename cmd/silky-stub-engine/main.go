// Command silky-stub-engine is a stand-in analysis engine. The manager launches
// it exactly as it would the real engine; it connects back over the given
// address and answers analysis requests with canned responses.
//
// Build with: go build -o bin/jamovi-engine ./cmd/silky-stub-engine
package main

import (
	"os"

	"github.com/jonathon-love/silky/internal/cli"
)

func main() {
	if err := cli.NewStubEngineCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
