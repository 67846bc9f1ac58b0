// Command partyline runs (and administers) the partyline coordination
// server: a process that exposes Manager over config-selected storage
// and global-lock backends.
package main

import (
	"fmt"
	"os"

	"github.com/sswguo/partyline/cmd/partyline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
