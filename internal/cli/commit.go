package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <file>",
	Short: "Record a new version of a document",
	Long: `Store the current content of a markdown document as a new version.

The label is the greatest existing label of the document bumped by --bump,
or the explicit --label, which must be greater than every existing label.

Examples:
  mdvc commit guide.md -m "Add usage section"
  mdvc commit guide.md -m "Rewrite" --bump major
  mdvc commit guide.md -m "Draft" --branch feature`,
	Args: cobra.ExactArgs(1),
	Run:  runCommit,
}

var (
	commitMessage string
	commitBump    string
	commitLabel   string
	commitBranch  string
)

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Version description (required)")
	commitCmd.Flags().StringVar(&commitBump, "bump", "", "Label component to bump (major, minor, patch)")
	commitCmd.Flags().StringVar(&commitLabel, "label", "", "Explicit version label")
	commitCmd.Flags().StringVarP(&commitBranch, "branch", "b", "", "Commit on a branch instead of main")
	commitCmd.MarkFlagRequired("message")
}

func runCommit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	bump := c.Config.Bump()
	if commitBump != "" {
		var err error
		if bump, err = models.ParseBumpType(commitBump); err != nil {
			exitError("%v", err)
		}
	}

	rec, err := commitFile(ctx, c, args[0], commitBranch, models.VersionOptions{
		Description: commitMessage,
		Bump:        bump,
		Label:       commitLabel,
	})
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("[%s %s] %s\n", rec.Lineage, rec.Label, rec.Description)
	if rec.ParentLabel != "" {
		d, err := core.CompareVersions(ctx, c.Store, rec.DocumentID, rec.ParentLabel, rec.Label)
		if err == nil {
			added, removed := d.LineStats()
			fmt.Printf(" %d field(s) changed, %d insertion(s)(+), %d deletion(s)(-)\n", len(d.Metadata), added, removed)
		}
	}
}

// commitFile stores the working file at path as a new version on branch, or
// on main when branch is empty. It refuses while a merge is pending, since the
// working file then holds conflict markers.
func commitFile(ctx context.Context, c *cmdContext, path, branch string, opts models.VersionOptions) (*models.VersionRecord, error) {
	snap, err := source.ReadFileWithID(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := checkNoPending(c.Config, snap.ID, path); err != nil {
		return nil, err
	}

	if branch != "" && branch != models.MainLineage {
		return core.CommitOnBranch(ctx, c.Store, snap.ID, branch, snap, opts)
	}
	return core.CreateVersion(ctx, c.Store, snap, opts)
}
