package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <file>",
	Short: "Show the status of a document",
	Long: `Show how the working file compares with the head of main, the branches
of the document, and whether a merge is waiting to be resolved.`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	path := args[0]
	working := readDocument(path)
	fmt.Printf("Document %s\n", working.ID)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	pending, err := loadPending(c.Config, working.ID)
	if err != nil {
		exitError("%v", err)
	}
	if pending != nil {
		red.Printf("Merging '%s' (%s) into %s (%s): %d conflict(s)\n",
			pending.Branch, pending.BranchHead, pending.Target, pending.TargetHead, pending.Conflicts)
		fmt.Printf("  (fix conflicts and run 'mdvc resolve %s')\n", path)
		fmt.Printf("  (use 'mdvc resolve --abort %s' to abandon the merge)\n", path)
		return
	}

	head, err := core.Head(ctx, c.Store, working.ID, models.MainLineage)
	if err != nil {
		exitError("%v", err)
	}
	if head == "" {
		fmt.Println("No versions yet")
		fmt.Printf("  (use 'mdvc commit %s -m <message>' to create the first version)\n", path)
		return
	}
	fmt.Printf("Main at %s\n", head)

	branches, err := core.ListBranches(ctx, c.Store, working.ID)
	if err != nil {
		exitError("%v", err)
	}
	for _, b := range branches {
		merged, err := core.IsAncestor(ctx, c.Store, working.ID, b.Head, head)
		if err != nil {
			exitError("%v", err)
		}
		if merged {
			fmt.Printf("  branch %s at %s (merged)\n", b.Name, b.Head)
		} else {
			yellow.Printf("  branch %s at %s (not merged)\n", b.Name, b.Head)
		}
	}

	rec, err := core.GetVersion(ctx, c.Store, working.ID, head)
	if err != nil {
		exitError("%v", err)
	}
	diff := core.DiffSnapshots(rec.Snapshot, working)
	if !diff.HasChanges() {
		green.Println("\nWorking file matches main")
		return
	}

	added, removed := diff.LineStats()
	fmt.Println("\nChanges not committed:")
	for _, f := range diff.Metadata {
		yellow.Printf("  field %s\n", f.Key)
	}
	if added > 0 || removed > 0 {
		yellow.Printf("  content +%d -%d\n", added, removed)
	}
}
