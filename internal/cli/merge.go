package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/mdvc/internal/core"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <file> <branch>",
	Short: "Merge a branch of a document into main or another branch",
	Long: `Merge the head of a branch into the target lineage (main by default).

Metadata and content are merged against the lowest common ancestor of both
heads. A clean merge creates a merge version on the target and updates the
working file. If conflicts are detected, the working file is replaced by a
conflict file with markers; edit it and run 'mdvc resolve'. Use --ours or
--theirs to resolve every conflict to one side instead.

Examples:
  mdvc merge guide.md feature               # Merge 'feature' into main
  mdvc merge guide.md feature --into draft  # Merge into branch 'draft'
  mdvc merge guide.md feature --theirs      # On conflict, prefer the branch
  mdvc merge guide.md feature --dry-run     # Report conflicts, change nothing`,
	Args: cobra.ExactArgs(2),
	Run:  runMerge,
}

var (
	mergeInto       string
	mergeMessage    string
	mergeBump       string
	mergeOurs       bool
	mergeTheirs     bool
	mergeUnion      bool
	mergeShowBase   bool
	mergeDryRun     bool
	mergeForce      bool
	mergeContextLen int
)

func init() {
	mergeCmd.Flags().StringVar(&mergeInto, "into", models.MainLineage, "Target lineage (main or a branch) or the label of its head")
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Custom merge version description")
	mergeCmd.Flags().StringVar(&mergeBump, "bump", "", "Label component to bump for the merge version")
	mergeCmd.Flags().BoolVar(&mergeOurs, "ours", false, "On conflict, prefer the target's version")
	mergeCmd.Flags().BoolVar(&mergeTheirs, "theirs", false, "On conflict, prefer the branch's version")
	mergeCmd.Flags().BoolVar(&mergeUnion, "union", false, "Merge list fields changed on both sides as a union")
	mergeCmd.Flags().BoolVar(&mergeShowBase, "show-base", false, "Include the base side in conflict markers")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Compute the merge without committing")
	mergeCmd.Flags().BoolVarP(&mergeForce, "force", "f", false, "Overwrite uncommitted changes in the working file")
	mergeCmd.Flags().IntVar(&mergeContextLen, "context", 0, "Context lines around conflict hunks")
}

func runMerge(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext()
	defer c.Close()

	path, branchName := args[0], args[1]

	// Validate flags
	if mergeOurs && mergeTheirs {
		exitError("cannot use --ours and --theirs together")
	}

	req := mergeRequest{
		Branch:   branchName,
		Into:     mergeInto,
		Merge:    c.Config.MergeOptions(),
		Version:  models.VersionOptions{Description: mergeMessage, Bump: c.Config.Bump()},
		ShowBase: mergeShowBase || c.Config.ShowBase,
		Force:    mergeForce,
	}
	if mergeOurs {
		req.Merge.Strategy = models.ConflictOurs
	} else if mergeTheirs {
		req.Merge.Strategy = models.ConflictTheirs
	}
	if mergeUnion {
		req.Merge.ListPolicy = models.ListUnion
	}
	if mergeContextLen > 0 {
		req.Merge.ContextLines = mergeContextLen
	}
	if mergeBump != "" {
		bump, err := models.ParseBumpType(mergeBump)
		if err != nil {
			exitError("%v", err)
		}
		req.Version.Bump = bump
	}

	if mergeDryRun {
		dryRunMerge(ctx, c, path, req)
		return
	}

	result, err := startMerge(ctx, c, path, req)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	if result.UpToDate {
		fmt.Println("Already up to date.")
		return
	}

	if !result.Clean() {
		printMergeConflicts(result)
		red.Printf("\nAutomatic merge failed; fix conflicts in %s and then run 'mdvc resolve %s'.\n", path, path)
		return
	}

	fmt.Printf("Merge made against base %s.\n", result.BaseLabel)
	green.Printf("  Merge version: %s (%s)\n", result.Record.Label, result.Record.Lineage)
	if result.ResolvedConflicts > 0 {
		yellow.Printf("Auto-resolved %d conflict(s) using '%s' strategy\n", result.ResolvedConflicts, req.Merge.Strategy)
	}
}

// mergeRequest carries the inputs of one merge invocation
type mergeRequest struct {
	Branch   string
	Into     string
	Merge    models.MergeOptions
	Version  models.VersionOptions
	ShowBase bool
	Force    bool
}

// startMerge merges a branch of the document at path into req.Into and
// updates the working file. A conflicted merge replaces the working file with
// the conflict document and records the pending state for 'mdvc resolve'.
func startMerge(ctx context.Context, c *cmdContext, path string, req mergeRequest) (*models.MergeResult, error) {
	working, err := source.ReadFileWithID(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	docID := working.ID

	if err := checkNoPending(c.Config, docID, path); err != nil {
		return nil, err
	}

	lineage, head, err := core.ResolveTarget(ctx, c.Store, docID, req.Into)
	if err != nil {
		return nil, err
	}
	target, err := core.GetVersion(ctx, c.Store, docID, head)
	if err != nil {
		return nil, err
	}
	if !req.Force && !target.Snapshot.SameState(working) {
		return nil, fmt.Errorf("%s has changes not committed to %s; commit them or use --force", path, lineage)
	}

	result, err := core.MergeBranchInto(ctx, c.Store, docID, req.Branch, lineage, req.Merge, req.Version)
	if err != nil {
		return nil, err
	}
	if result.UpToDate {
		return result, nil
	}

	if result.Clean() {
		if err := source.WriteFile(path, result.Merged); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		return result, nil
	}

	doc := core.RenderConflicts(result, core.RenderOptions{ShowBase: req.ShowBase})
	if err := source.WriteFile(path, doc); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	err = savePending(c.Config, &pendingMerge{
		DocumentID: docID,
		File:       path,
		Branch:     req.Branch,
		BranchHead: result.TheirsLabel,
		Target:     result.Lineage,
		TargetHead: result.MineLabel,
		Base:       result.BaseLabel,
		Conflicts:  result.Report.Count(),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record merge state: %w", err)
	}
	return result, nil
}

// dryRunMerge reports the outcome of a merge without touching the store or
// the working file
func dryRunMerge(ctx context.Context, c *cmdContext, path string, req mergeRequest) {
	docID := readDocument(path).ID

	branch, err := core.GetBranch(ctx, c.Store, docID, req.Branch)
	if err != nil {
		exitError("%v", err)
	}
	lineage, head, err := core.ResolveTarget(ctx, c.Store, docID, req.Into)
	if err != nil {
		exitError("%v", err)
	}

	res, err := core.MergeVersions(ctx, c.Store, docID, head, branch.Head, req.Merge)
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Into %s: base %s, mine %s, theirs %s\n", lineage, res.BaseLabel, res.MineLabel, res.TheirsLabel)
	if res.Clean() {
		color.New(color.FgGreen).Println("Merge would be clean")
	} else {
		printMergeConflicts(res)
	}
}

func printMergeConflicts(result *models.MergeResult) {
	red := color.New(color.FgRed, color.Bold)

	if len(result.Report.MetadataConflicts) > 0 {
		red.Println("\nCONFLICTS (metadata):")
		for _, key := range models.SortedKeys(result.Report.MetadataConflicts) {
			mc := result.Report.MetadataConflicts[key]
			fmt.Printf("  %s: base %s, mine %s, theirs %s\n", key, mc.Base, mc.Mine, mc.Theirs)
		}
	}

	if len(result.Report.ContentConflicts) > 0 {
		red.Println("\nCONFLICTS (content):")
		for _, h := range result.Report.ContentConflicts {
			fmt.Printf("  at line %d: %d line(s) in mine, %d line(s) in theirs\n", h.Offset+1, len(h.Mine), len(h.Theirs))
		}
	}
}
