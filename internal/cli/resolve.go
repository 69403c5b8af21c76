package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Commit an edited conflict file as the merge version",
	Long: `Complete a conflicted merge started by 'mdvc merge'.

The working file must be free of conflict markers: content blocks between
<<<<<<< and >>>>>>> lines and metadata fields holding a '<<<<<<< conflict'
map. With --abort, the working file is restored to the target head and the
merge is abandoned.`,
	Args: cobra.ExactArgs(1),
	Run:  runResolve,
}

var (
	resolveAbort   bool
	resolveMessage string
)

func init() {
	resolveCmd.Flags().BoolVar(&resolveAbort, "abort", false, "Abandon the merge and restore the working file")
	resolveCmd.Flags().StringVarP(&resolveMessage, "message", "m", "", "Custom merge version description")
}

func runResolve(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	path := args[0]

	if resolveAbort {
		pending, err := abortMerge(ctx, c, path)
		if err != nil {
			exitError("%v", err)
		}
		fmt.Printf("Merge of '%s' aborted; %s restored to %s\n", pending.Branch, path, pending.TargetHead)
		return
	}

	rec, pending, err := resolveMerge(ctx, c, path, models.VersionOptions{
		Description: resolveMessage,
		Bump:        c.Config.Bump(),
	})
	switch {
	case errors.Is(err, core.ErrUnresolvedConflict), errors.Is(err, core.ErrMalformedMarker):
		exitError("%s: %v", path, err)
	case errors.Is(err, core.ErrConcurrentModification):
		exitError("target %s moved since the merge started; abort and merge again: %v", pending.Target, err)
	case err != nil:
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("[%s %s] %s\n", rec.Lineage, rec.Label, rec.Description)
	fmt.Printf("Merged '%s' (%s) into %s\n", pending.Branch, rec.MergedFrom, rec.Lineage)
}

// resolveMerge commits the edited conflict file at path as the merge version
// on the lineage recorded when the merge started. The pending state is
// returned whenever one was found.
func resolveMerge(ctx context.Context, c *cmdContext, path string, opts models.VersionOptions) (*models.VersionRecord, *pendingMerge, error) {
	doc, pending, err := loadMergeInProgress(c, path)
	if err != nil {
		return nil, pending, err
	}

	branch, err := core.GetBranch(ctx, c.Store, doc.ID, pending.Branch)
	if err != nil {
		return nil, pending, err
	}
	if branch.Head != pending.BranchHead {
		return nil, pending, fmt.Errorf("branch '%s' moved from %s to %s since the merge started; abort and merge again", branch.Name, pending.BranchHead, branch.Head)
	}

	opts.Lineage = pending.Target
	opts.ExpectedHead = pending.TargetHead
	rec, err := core.CommitResolution(ctx, c.Store, doc.ID, doc, pending.Branch, opts)
	if err != nil {
		return nil, pending, err
	}

	if err := clearPending(c.Config, doc.ID); err != nil {
		return nil, pending, err
	}

	// The committed snapshot is normalized; keep the working file in sync
	if err := source.WriteFile(path, rec.Snapshot); err != nil {
		return nil, pending, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return rec, pending, nil
}

// abortMerge restores the working file to the target head and drops the
// pending state.
func abortMerge(ctx context.Context, c *cmdContext, path string) (*pendingMerge, error) {
	doc, pending, err := loadMergeInProgress(c, path)
	if err != nil {
		return pending, err
	}

	target, err := core.GetVersion(ctx, c.Store, doc.ID, pending.TargetHead)
	if err != nil {
		return pending, err
	}
	if err := source.WriteFile(path, target.Snapshot); err != nil {
		return pending, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return pending, clearPending(c.Config, doc.ID)
}

func loadMergeInProgress(c *cmdContext, path string) (*models.Snapshot, *pendingMerge, error) {
	doc, err := source.ReadFileWithID(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	pending, err := loadPending(c.Config, doc.ID)
	if err != nil {
		return nil, nil, err
	}
	if pending == nil {
		return nil, nil, fmt.Errorf("no merge in progress for %s", path)
	}
	return doc, pending, nil
}
