package cli

import (
	"fmt"
	"os"

	"github.com/kilupskalvis/mdvc/internal/config"
	"github.com/kilupskalvis/mdvc/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new mdvc repository",
	Long: `Initialize a new mdvc repository in the current directory.
This creates a .mdvc directory holding the configuration and version history
of every document committed below it.`,
	Run: runInit,
}

var initBackend string

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", store.KindBbolt, "Storage backend (bbolt, sqlite)")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	// Check if already initialized
	if root, err := config.FindRoot(cwd); err == nil {
		exitError("mdvc repository already exists at %s", root)
	}

	cfg, err := config.Initialize(cwd, initBackend)
	if err != nil {
		exitError("failed to initialize repository: %v", err)
	}

	fmt.Printf("Initialized empty mdvc repository in %s/\n", config.MDVCDir)
	fmt.Printf("Backend: %s\n", cfg.Backend)
	fmt.Printf("\nRun 'mdvc commit <file> -m \"Initial version\"' to version a document.\n")
}
