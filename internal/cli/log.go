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

var logCmd = &cobra.Command{
	Use:   "log <file>",
	Short: "Show version history",
	Long:  `Display the versions of a document, newest first, across all lineages.`,
	Args:  cobra.ExactArgs(1),
	Run:   runLog,
}

var (
	logOneline bool
	logLimit   int
	logBranch  string
)

func init() {
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each version on a single line")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of versions to show")
	logCmd.Flags().StringVarP(&logBranch, "branch", "b", "", "Only show versions committed on this lineage")
}

func runLog(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	snap := readDocument(args[0])
	records, err := core.ListVersions(ctx, c.Store, snap.ID)
	if err != nil {
		exitError("failed to get version log: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No versions yet")
		return
	}

	heads := lineageHeads(ctx, c, snap.ID)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	magenta := color.New(color.FgMagenta)

	shown := 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if logBranch != "" && rec.Lineage != logBranch {
			continue
		}
		if logLimit > 0 && shown >= logLimit {
			break
		}
		shown++

		if logOneline {
			yellow.Printf("%s ", rec.Label)
			if names := heads[rec.Label]; len(names) > 0 {
				cyan.Printf("(%s) ", strings.Join(names, ", "))
			}
			if rec.IsMergeVersion() {
				magenta.Print("[merge] ")
			}
			fmt.Println(rec.Description)
			continue
		}

		yellow.Printf("version %s", rec.Label)
		if names := heads[rec.Label]; len(names) > 0 {
			cyan.Printf(" (%s)", strings.Join(names, ", "))
		}
		fmt.Println()
		if rec.IsMergeVersion() {
			fmt.Printf("Merge:  %s %s\n", rec.ParentLabel, rec.MergedFrom)
		} else if rec.ParentLabel != "" {
			fmt.Printf("Parent: %s\n", rec.ParentLabel)
		}
		fmt.Printf("Branch: %s\n", rec.Lineage)
		fmt.Printf("Date:   %s\n", rec.CreatedAt.Local().Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("\n    %s\n\n", rec.Description)
	}
}

// lineageHeads maps each head label to the lineages pointing at it
func lineageHeads(ctx context.Context, c *cmdContext, docID string) map[string][]string {
	heads := make(map[string][]string)
	if head, err := core.Head(ctx, c.Store, docID, models.MainLineage); err == nil && head != "" {
		heads[head] = append(heads[head], models.MainLineage)
	}
	branches, err := core.ListBranches(ctx, c.Store, docID)
	if err != nil {
		return heads
	}
	for _, b := range branches {
		heads[b.Head] = append(heads[b.Head], b.Name)
	}
	return heads
}
