package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <file> <ref>",
	Short: "Restore an earlier version as a new version",
	Long: `Create a new version whose metadata and content equal an earlier version.

History is never rewritten: the rollback is an ordinary version on the
lineage, with the current head as its parent. The working file is updated.

Examples:
  mdvc rollback guide.md 1.0.0
  mdvc rollback guide.md main~2
  mdvc rollback guide.md 1.1.0 --branch feature`,
	Args: cobra.ExactArgs(2),
	Run:  runRollback,
}

var (
	rollbackBranch  string
	rollbackMessage string
	rollbackBump    string
)

func init() {
	rollbackCmd.Flags().StringVarP(&rollbackBranch, "branch", "b", "", "Lineage to commit the rollback on (default main)")
	rollbackCmd.Flags().StringVarP(&rollbackMessage, "message", "m", "", "Version description")
	rollbackCmd.Flags().StringVar(&rollbackBump, "bump", "", "Label component to bump")
}

func runRollback(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	path := args[0]
	docID := readDocument(path).ID
	if err := checkNoPending(c.Config, docID, path); err != nil {
		exitError("%v", err)
	}

	label, _, err := core.ResolveRef(ctx, c.Store, docID, args[1])
	if err != nil {
		exitError("%v", err)
	}

	bump := c.Config.Bump()
	if rollbackBump != "" {
		if bump, err = models.ParseBumpType(rollbackBump); err != nil {
			exitError("%v", err)
		}
	}

	rec, err := core.RollbackTo(ctx, c.Store, docID, label, models.VersionOptions{
		Description: rollbackMessage,
		Bump:        bump,
		Lineage:     rollbackBranch,
	})
	if err != nil {
		exitError("%v", err)
	}

	writeDocument(path, rec.Snapshot)

	green := color.New(color.FgGreen)
	green.Printf("[%s %s] %s\n", rec.Lineage, rec.Label, rec.Description)
	fmt.Printf("%s now matches version %s\n", path, label)
}
