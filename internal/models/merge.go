package models

// ConflictStrategy defines how to handle merge conflicts
type ConflictStrategy string

const (
	ConflictAbort  ConflictStrategy = "abort"  // Default: report conflicts, commit nothing
	ConflictOurs   ConflictStrategy = "ours"   // Prefer mine
	ConflictTheirs ConflictStrategy = "theirs" // Prefer theirs
)

// ListPolicy decides how list fields extended differently on both sides are merged
type ListPolicy string

const (
	ListConflict ListPolicy = "conflict" // Default: report a metadata conflict
	ListUnion    ListPolicy = "union"    // Deterministic union of both sides' changes
)

// DefaultContextLines is the number of stable lines kept around a content hunk
const DefaultContextLines = 3

// DefaultIgnoreFields are bookkeeping fields that never conflict
var DefaultIgnoreFields = []string{"updated_at", "version", "version_history"}

// MetadataConflict holds the three values of a field changed differently on both sides
type MetadataConflict struct {
	Base   Field `json:"base"`
	Mine   Field `json:"mine"`
	Theirs Field `json:"theirs"`
}

// ContentHunk is a region of content where both sides changed the same span differently
type ContentHunk struct {
	Offset        int      `json:"offset"` // Line index in the partial merged content
	ContextBefore []string `json:"context_before"`
	Base          []string `json:"base"`
	Mine          []string `json:"mine"`
	Theirs        []string `json:"theirs"`
	ContextAfter  []string `json:"context_after"`
}

// ConflictReport is the outcome of an auto-merge that could not be completed
type ConflictReport struct {
	MetadataConflicts map[string]MetadataConflict `json:"metadata_conflicts"`
	ContentConflicts  []ContentHunk               `json:"content_conflicts"`
}

// NewConflictReport creates an empty report
func NewConflictReport() *ConflictReport {
	return &ConflictReport{MetadataConflicts: make(map[string]MetadataConflict)}
}

// HasConflicts returns true if either conflict collection is non-empty
func (r *ConflictReport) HasConflicts() bool {
	return r != nil && (len(r.MetadataConflicts) > 0 || len(r.ContentConflicts) > 0)
}

// Count returns the total number of conflicts
func (r *ConflictReport) Count() int {
	if r == nil {
		return 0
	}
	return len(r.MetadataConflicts) + len(r.ContentConflicts)
}

// MergeOptions configures merge behavior
type MergeOptions struct {
	ListPolicy   ListPolicy       // How to merge divergent list fields
	IgnoreFields []string         // Fields that keep mine's value without conflict
	ContextLines int              // Stable lines of context per hunk; 0 means default
	Strategy     ConflictStrategy // How to handle conflicts after merging
}

// DefaultMergeOptions returns the default merge configuration
func DefaultMergeOptions() MergeOptions {
	ignore := make([]string, len(DefaultIgnoreFields))
	copy(ignore, DefaultIgnoreFields)
	return MergeOptions{
		ListPolicy:   ListConflict,
		IgnoreFields: ignore,
		ContextLines: DefaultContextLines,
		Strategy:     ConflictAbort,
	}
}

// MergeResult contains the outcome of a three-way merge
type MergeResult struct {
	Merged            *Snapshot       // Complete if Report is empty, partial otherwise
	Report            *ConflictReport // Conflicts that were not resolved
	BaseLabel         string          // Common ancestor
	MineLabel         string          // Target side
	TheirsLabel       string          // Incoming side
	Lineage           string          // Target lineage, set for branch merges
	Record            *VersionRecord  // The committed merge version (nil on conflict)
	ResolvedConflicts int             // Count of conflicts auto-resolved via strategy
	UpToDate          bool            // Theirs was already contained in mine; nothing merged
}

// Clean returns true if the merge produced no unresolved conflicts
func (r *MergeResult) Clean() bool {
	return !r.Report.HasConflicts()
}
