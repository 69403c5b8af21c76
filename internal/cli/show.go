package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <file> [ref]",
	Short: "Show a stored version",
	Long: `Show the details and the full document stored at a version.

A ref is a label, a lineage name (main or a branch), optionally followed by
~N to walk N parents back. Defaults to main.

Examples:
  mdvc show guide.md              # Head of main
  mdvc show guide.md 1.2.0        # Specific version
  mdvc show guide.md feature~1    # Parent of the head of 'feature'
  mdvc show guide.md 1.0.0 --write  # Replace the working file with 1.0.0`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runShow,
}

var (
	showRaw   bool
	showWrite bool
)

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print only the document")
	showCmd.Flags().BoolVar(&showWrite, "write", false, "Write the version into the working file")
}

func runShow(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	path := args[0]
	snap := readDocument(path)
	ref := ""
	if len(args) > 1 {
		ref = args[1]
	}

	label, _, err := core.ResolveRef(ctx, c.Store, snap.ID, ref)
	if err != nil {
		exitError("%v", err)
	}
	rec, err := core.GetVersion(ctx, c.Store, snap.ID, label)
	if err != nil {
		exitError("%v", err)
	}

	if showWrite {
		writeDocument(path, rec.Snapshot)
		fmt.Printf("Wrote version %s to %s\n", rec.Label, path)
		return
	}

	data, err := source.Render(rec.Snapshot)
	if err != nil {
		exitError("failed to render version: %v", err)
	}
	if showRaw {
		os.Stdout.Write(data)
		return
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("version %s\n", rec.Label)
	fmt.Printf("Document: %s\n", shortID(rec.DocumentID))
	fmt.Printf("Branch:   %s\n", rec.Lineage)
	if rec.ParentLabel != "" {
		fmt.Printf("Parent:   %s\n", rec.ParentLabel)
	}
	if rec.MergedFrom != "" {
		fmt.Printf("Merged:   %s\n", rec.MergedFrom)
	}
	fmt.Printf("Date:     %s\n", rec.CreatedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
	fmt.Printf("\n    %s\n\n", rec.Description)
	os.Stdout.Write(data)
}
