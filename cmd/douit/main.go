// Command douit manages versioned text fragments and term sets, and serves
// them over HTTP with "douit server start".
package main

import (
	"os"

	"github.com/douit-app/douit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
