package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch <file> [name] [start-point]",
	Short: "List, create, or delete branches of a document",
	Long: `Manage the branches of a document.

Without a name, lists all branches. With a name, creates a branch forked at
start-point (a label or ref), or at the head of main when omitted.

Examples:
  mdvc branch guide.md                  # List branches
  mdvc branch guide.md feature          # Fork 'feature' at the head of main
  mdvc branch guide.md hotfix 1.2.0     # Fork 'hotfix' at version 1.2.0
  mdvc branch guide.md -d feature       # Delete 'feature'`,
	Args: cobra.RangeArgs(1, 3),
	Run:  runBranch,
}

var branchDelete bool

func init() {
	branchCmd.Flags().BoolVarP(&branchDelete, "delete", "d", false, "Delete a branch")
}

func runBranch(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	st := c.Store
	docID := readDocument(args[0]).ID

	// Delete branch
	if branchDelete {
		if len(args) < 2 {
			exitError("branch name required for deletion")
		}
		if err := core.DeleteBranch(ctx, st, docID, args[1]); err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Deleted branch '%s'\n", args[1])
		return
	}

	// Create branch
	if len(args) > 1 {
		name := args[1]
		startPoint := ""
		if len(args) > 2 {
			label, _, err := core.ResolveRef(ctx, st, docID, args[2])
			if err != nil {
				exitError("%v", err)
			}
			startPoint = label
		}

		branch, err := core.CreateBranch(ctx, st, docID, startPoint, name)
		if err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Created branch '%s' at %s\n", branch.Name, branch.ForkPoint)
		return
	}

	// List branches
	branches, err := core.ListBranches(ctx, st, docID)
	if err != nil {
		exitError("failed to list branches: %v", err)
	}

	green := color.New(color.FgGreen)
	head, err := core.Head(ctx, st, docID, models.MainLineage)
	if err != nil {
		exitError("%v", err)
	}
	if head == "" {
		fmt.Println("No versions yet. Commit the document first, then branches will be available.")
		return
	}
	green.Printf("  %-20s %s\n", models.MainLineage, head)

	for _, branch := range branches {
		status := "no commits"
		if branch.HasCommits() {
			status = "forked at " + branch.ForkPoint
		}
		fmt.Printf("  %-20s %s (%s)\n", branch.Name, branch.Head, status)
	}
}
