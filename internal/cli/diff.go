package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <file> [from] [to]",
	Short: "Show changes between versions and the working file",
	Long: `Show metadata and content differences.

With no refs, compares the head of main with the working file. With one ref,
compares that version with the working file. With two refs, compares the two
stored versions.`,
	Args: cobra.RangeArgs(1, 3),
	Run:  runDiff,
}

var (
	diffStat    bool
	diffContext int
)

func init() {
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "Show diffstat instead of full diff")
	diffCmd.Flags().IntVarP(&diffContext, "unified", "U", models.DefaultContextLines, "Lines of context in the content diff")
}

func runDiff(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	working := readDocument(args[0])
	fromRef := models.MainLineage
	if len(args) > 1 {
		fromRef = args[1]
	}

	from, fromName := resolveSnapshot(ctx, c, working.ID, fromRef)
	to, toName := working, "working"
	if len(args) > 2 {
		to, toName = resolveSnapshot(ctx, c, working.ID, args[2])
	}

	diff := core.DiffSnapshots(from, to)
	if !diff.HasChanges() {
		fmt.Println("No changes")
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if diffStat {
		added, removed := diff.LineStats()
		if len(diff.Metadata) > 0 {
			yellow.Printf(" %d field(s) changed(~)\n", len(diff.Metadata))
		}
		if added > 0 {
			green.Printf(" %d insertion(s)(+)\n", added)
		}
		if removed > 0 {
			red.Printf(" %d deletion(s)(-)\n", removed)
		}
		return
	}

	if len(diff.Metadata) > 0 {
		fmt.Println("metadata:")
		for _, line := range strings.SplitAfter(core.FormatMetadataDiff(diff.Metadata), "\n") {
			printColoredLine(line, green, red, yellow)
		}
	}

	text, err := core.UnifiedDiff(from.Content, to.Content, fromName, toName, diffContext)
	if err != nil {
		exitError("%v", err)
	}
	if text == "" {
		return
	}
	fmt.Println()
	for _, line := range strings.SplitAfter(text, "\n") {
		if strings.HasPrefix(line, "@@") {
			cyan.Print(line)
			continue
		}
		printColoredLine(line, green, red, yellow)
	}
}

func printColoredLine(line string, green, red, yellow *color.Color) {
	switch {
	case line == "":
	case strings.HasPrefix(line, "+"):
		green.Print(line)
	case strings.HasPrefix(line, "-"):
		red.Print(line)
	case strings.HasPrefix(line, "~"):
		yellow.Print(line)
	default:
		fmt.Print(line)
	}
}

// resolveSnapshot loads the snapshot stored at ref and a display name for it
func resolveSnapshot(ctx context.Context, c *cmdContext, docID, ref string) (*models.Snapshot, string) {
	label, _, err := core.ResolveRef(ctx, c.Store, docID, ref)
	if err != nil {
		exitError("%v", err)
	}
	rec, err := core.GetVersion(ctx, c.Store, docID, label)
	if err != nil {
		exitError("%v", err)
	}
	return rec.Snapshot, label
}
