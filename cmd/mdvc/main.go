// Command mdvc versions markdown documents and merges their branches.
package main

import (
	"os"

	"github.com/kilupskalvis/mdvc/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
