package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
)

var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidateBranchName rejects names that would be ambiguous as refs.
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("branch name cannot be empty: %w", ErrInvalidBranchName)
	case name == models.MainLineage:
		return fmt.Errorf("'%s' is reserved: %w", name, ErrInvalidBranchName)
	case !branchNamePattern.MatchString(name), strings.Contains(name, "~"), strings.Contains(name, ".."):
		return fmt.Errorf("'%s': %w", name, ErrInvalidBranchName)
	case models.ValidLabel(name):
		return fmt.Errorf("'%s' looks like a version label: %w", name, ErrInvalidBranchName)
	}
	return nil
}

// ListBranches returns all branches of a document sorted by name
func ListBranches(ctx context.Context, st store.Backend, docID string) ([]*models.Branch, error) {
	branches, err := st.ListBranches(ctx, docID)
	if err != nil {
		return nil, storageErr("list branches", err)
	}
	return branches, nil
}

// GetBranch returns a branch by name
func GetBranch(ctx context.Context, st store.Backend, docID, name string) (*models.Branch, error) {
	branch, err := st.GetBranch(ctx, docID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("branch '%s': %w", name, ErrBranchNotFound)
		}
		return nil, storageErr("get branch", err)
	}
	return branch, nil
}

// CreateBranch creates a new branch forked at fromLabel.
// An empty fromLabel forks at the head of main.
func CreateBranch(ctx context.Context, st store.Backend, docID, fromLabel, name string) (*models.Branch, error) {
	if err := ValidateBranchName(name); err != nil {
		return nil, err
	}

	if fromLabel == "" {
		head, err := Head(ctx, st, docID, models.MainLineage)
		if err != nil {
			return nil, err
		}
		if head == "" {
			return nil, fmt.Errorf("cannot create branch: no versions yet: %w", ErrVersionNotFound)
		}
		fromLabel = head
	}
	if _, err := GetVersion(ctx, st, docID, fromLabel); err != nil {
		return nil, err
	}

	branch := &models.Branch{
		DocumentID: docID,
		Name:       name,
		ForkPoint:  fromLabel,
		Head:       fromLabel,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateBranch(ctx, branch); err != nil {
		switch {
		case errors.Is(err, store.ErrExists):
			return nil, fmt.Errorf("branch '%s': %w", name, ErrDuplicateBranch)
		case errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("version %s: %w", fromLabel, ErrVersionNotFound)
		}
		return nil, storageErr("create branch", err)
	}

	slog.DebugContext(ctx, "branch created", "document", docID, "branch", name, "fork_point", fromLabel)
	return branch, nil
}

// DeleteBranch removes a branch. Versions committed on it stay in the history.
func DeleteBranch(ctx context.Context, st store.Backend, docID, name string) error {
	if err := st.DeleteBranch(ctx, docID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("branch '%s': %w", name, ErrBranchNotFound)
		}
		return storageErr("delete branch", err)
	}
	return nil
}

// CommitOnBranch creates a version whose parent is the branch head and
// advances the head. Unless opts.ExpectedHead is set, the head read here is
// the one the commit must replace.
func CommitOnBranch(ctx context.Context, st store.Backend, docID, name string, snap *models.Snapshot, opts models.VersionOptions) (*models.VersionRecord, error) {
	branch, err := GetBranch(ctx, st, docID, name)
	if err != nil {
		return nil, err
	}

	s, err := forDocument(snap, docID)
	if err != nil {
		return nil, err
	}

	opts.Lineage = name
	opts.MergedFrom = ""
	if opts.ExpectedHead == "" {
		opts.ExpectedHead = branch.Head
	}
	return CreateVersion(ctx, st, s, opts)
}

// forDocument returns a copy of snap bound to docID.
func forDocument(snap *models.Snapshot, docID string) (*models.Snapshot, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot to commit")
	}
	if snap.ID != "" && snap.ID != docID {
		return nil, fmt.Errorf("snapshot belongs to document %s, not %s", snap.ID, docID)
	}
	s := snap.Clone()
	s.ID = docID
	return s, nil
}

// lineageHead is a resolved merge target.
type lineageHead struct {
	lineage string
	head    string
}

// ResolveTarget resolves a merge target to its lineage and current head. The
// target is main, a branch name, or a label that is currently the head of
// exactly one lineage. REF~N is not a target: merges always land on a head.
func ResolveTarget(ctx context.Context, st store.Backend, docID, target string) (lineage, head string, err error) {
	into, err := resolveTarget(ctx, st, docID, target)
	if err != nil {
		return "", "", err
	}
	return into.lineage, into.head, nil
}

func resolveTarget(ctx context.Context, st store.Backend, docID, target string) (lineageHead, error) {
	if strings.Contains(target, "~") {
		return lineageHead{}, fmt.Errorf("merge target '%s' must be a lineage or a head label, not REF~N", target)
	}
	if target == "" || target == models.MainLineage {
		head, err := Head(ctx, st, docID, models.MainLineage)
		if err != nil {
			return lineageHead{}, err
		}
		if head == "" {
			return lineageHead{}, fmt.Errorf("main has no versions: %w", ErrVersionNotFound)
		}
		return lineageHead{models.MainLineage, head}, nil
	}

	if !models.ValidLabel(target) {
		branch, err := GetBranch(ctx, st, docID, target)
		if err != nil {
			return lineageHead{}, err
		}
		return lineageHead{branch.Name, branch.Head}, nil
	}

	if _, err := GetVersion(ctx, st, docID, target); err != nil {
		return lineageHead{}, err
	}
	var lineages []string
	mainHead, err := Head(ctx, st, docID, models.MainLineage)
	if err != nil {
		return lineageHead{}, err
	}
	if mainHead == target {
		lineages = append(lineages, models.MainLineage)
	}
	branches, err := ListBranches(ctx, st, docID)
	if err != nil {
		return lineageHead{}, err
	}
	for _, b := range branches {
		if b.Head == target {
			lineages = append(lineages, b.Name)
		}
	}
	switch len(lineages) {
	case 0:
		return lineageHead{}, fmt.Errorf("version %s is no longer the head of a lineage: %w", target, ErrConcurrentModification)
	case 1:
		return lineageHead{lineages[0], target}, nil
	}
	return lineageHead{}, fmt.Errorf("version %s is the head of %s; name the lineage: %w", target, strings.Join(lineages, ", "), ErrAmbiguousTarget)
}

// MergeBranchInto merges the head of a branch into target. The base is the
// lowest common ancestor of both heads, which is the fork point until the
// branch has been merged once. A clean or strategy-resolved merge is committed
// on the target lineage with the target head as parent and the branch head as
// merged-from; a conflicted merge commits nothing and returns the report.
// Only the description and bump of vopts are used.
func MergeBranchInto(ctx context.Context, st store.Backend, docID, name, target string, opts models.MergeOptions, vopts models.VersionOptions) (*models.MergeResult, error) {
	branch, err := GetBranch(ctx, st, docID, name)
	if err != nil {
		return nil, err
	}
	into, err := resolveTarget(ctx, st, docID, target)
	if err != nil {
		return nil, err
	}
	if into.lineage == branch.Name {
		return nil, fmt.Errorf("cannot merge branch '%s' into itself", name)
	}

	res, h, err := mergeLabels(ctx, st, docID, into.head, branch.Head, opts)
	if err != nil {
		return nil, err
	}
	res.Lineage = into.lineage

	if h.ancestors(into.head)[branch.Head] {
		res.UpToDate = true
		res.Merged = h[into.head].Snapshot.Clone()
		res.Report = models.NewConflictReport()
		return res, nil
	}
	if res.Report.HasConflicts() {
		slog.DebugContext(ctx, "merge has conflicts", "document", docID, "branch", name, "into", into.lineage, "conflicts", res.Report.Count())
		return res, nil
	}

	desc := vopts.Description
	if desc == "" {
		desc = fmt.Sprintf("Merge branch '%s' into %s", name, into.lineage)
	}
	rec, err := CreateVersion(ctx, st, res.Merged, models.VersionOptions{
		Description:  desc,
		Bump:         vopts.Bump,
		Label:        vopts.Label,
		Lineage:      into.lineage,
		ExpectedHead: into.head,
		MergedFrom:   branch.Head,
	})
	if err != nil {
		return nil, err
	}
	res.Record = rec
	res.Merged = rec.Snapshot.Clone()
	return res, nil
}

// CommitResolution commits an edited conflict resolution document as the merge
// of a branch into opts.Lineage (main by default). opts.ExpectedHead should be
// the target head the conflicted merge was computed against; the commit fails
// with ErrConcurrentModification if the lineage has moved since. The document
// must be free of conflict markers.
func CommitResolution(ctx context.Context, st store.Backend, docID string, resolved *models.Snapshot, name string, opts models.VersionOptions) (*models.VersionRecord, error) {
	clean, err := ParseResolved(resolved)
	if err != nil {
		return nil, err
	}
	snap, err := forDocument(clean, docID)
	if err != nil {
		return nil, err
	}

	branch, err := GetBranch(ctx, st, docID, name)
	if err != nil {
		return nil, err
	}
	lineage := opts.LineageOrMain()
	if lineage == branch.Name {
		return nil, fmt.Errorf("cannot merge branch '%s' into itself", name)
	}

	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Merge branch '%s' into %s (resolved)", name, lineage)
	}
	opts.Lineage = lineage
	opts.MergedFrom = branch.Head
	return CreateVersion(ctx, st, snap, opts)
}

// ResolveRef resolves a ref to a version label.
// Supports: main, branch names, labels, and REF~N walking N first parents.
// The returned lineage is set when ref names a lineage head without ~N.
func ResolveRef(ctx context.Context, st store.Backend, docID, ref string) (label string, lineage string, err error) {
	base, steps, err := splitRef(ref)
	if err != nil {
		return "", "", err
	}

	switch {
	case base == "" || base == models.MainLineage:
		label, err = Head(ctx, st, docID, models.MainLineage)
		if err != nil {
			return "", "", err
		}
		if label == "" {
			return "", "", fmt.Errorf("main has no versions: %w", ErrVersionNotFound)
		}
		lineage = models.MainLineage
	case models.ValidLabel(base):
		if _, err := GetVersion(ctx, st, docID, base); err != nil {
			return "", "", err
		}
		label = base
	default:
		branch, err := GetBranch(ctx, st, docID, base)
		if err != nil {
			return "", "", fmt.Errorf("'%s' is not a valid branch or version: %w", ref, err)
		}
		label, lineage = branch.Head, branch.Name
	}

	if steps == 0 {
		return label, lineage, nil
	}

	for i := 0; i < steps; i++ {
		rec, err := GetVersion(ctx, st, docID, label)
		if err != nil {
			return "", "", err
		}
		if rec.ParentLabel == "" {
			return "", "", fmt.Errorf("cannot resolve %s: reached initial version after %d step(s): %w", ref, i, ErrVersionNotFound)
		}
		label = rec.ParentLabel
	}
	return label, "", nil
}

// splitRef parses REF or REF~N.
func splitRef(ref string) (string, int, error) {
	base, n, found := strings.Cut(ref, "~")
	if !found {
		return ref, 0, nil
	}
	steps, err := strconv.Atoi(n)
	if err != nil {
		return "", 0, fmt.Errorf("invalid ref '%s': expected REF~N where N is a number", ref)
	}
	if steps < 0 {
		return "", 0, fmt.Errorf("invalid ref '%s': N must be non-negative", ref)
	}
	return base, steps, nil
}
