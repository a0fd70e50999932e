// Command kbchat is the entry point for the knowledge-base chat service.
// It provides a CLI interface (via Cobra) with an HTTP server mode, a
// one-shot question mode, and a manual index sync mode.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/kbchat-go/cmd/kbchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
