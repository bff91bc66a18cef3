// Command ydoc manages replicated documents stored as SQLite update logs.
package main

import (
	"os"

	"github.com/roach88/ydoc/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
