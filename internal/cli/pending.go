package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/mdvc/internal/config"
	"github.com/pelletier/go-toml/v2"
)

// pendingMerge records a conflicted merge awaiting 'mdvc resolve'
type pendingMerge struct {
	DocumentID string    `toml:"document_id"`
	File       string    `toml:"file"`
	Branch     string    `toml:"branch"`
	BranchHead string    `toml:"branch_head"`
	Target     string    `toml:"target"`
	TargetHead string    `toml:"target_head"`
	Base       string    `toml:"base"`
	Conflicts  int       `toml:"conflicts"`
	CreatedAt  time.Time `toml:"created_at"`
}

// errMergePending is returned by commands that would record the conflict file
// as an ordinary version
var errMergePending = errors.New("merge in progress")

// checkNoPending fails while a conflicted merge of the document awaits resolution
func checkNoPending(cfg *config.Config, docID, path string) error {
	p, err := loadPending(cfg, docID)
	if err != nil {
		return err
	}
	if p != nil {
		return fmt.Errorf("merging '%s' into %s; run 'mdvc resolve %s' or 'mdvc resolve --abort %s': %w", p.Branch, p.Target, path, path, errMergePending)
	}
	return nil
}

func pendingPath(cfg *config.Config, docID string) string {
	return filepath.Join(cfg.ConflictsPath(), docID+".toml")
}

func savePending(cfg *config.Config, p *pendingMerge) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal merge state: %w", err)
	}
	if err := os.MkdirAll(cfg.ConflictsPath(), 0755); err != nil {
		return err
	}
	return os.WriteFile(pendingPath(cfg, p.DocumentID), data, 0644)
}

// loadPending returns nil when no merge is pending for the document
func loadPending(cfg *config.Config, docID string) (*pendingMerge, error) {
	data, err := os.ReadFile(pendingPath(cfg, docID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p pendingMerge
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse merge state: %w", err)
	}
	return &p, nil
}

func clearPending(cfg *config.Config, docID string) error {
	err := os.Remove(pendingPath(cfg, docID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
