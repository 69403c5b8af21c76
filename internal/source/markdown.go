// Package source reads and writes document snapshots as markdown files with
// YAML frontmatter. The frontmatter holds the metadata and the document ID;
// everything after the closing delimiter is the content.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kilupskalvis/mdvc/internal/models"
	"gopkg.in/yaml.v3"
)

// IDKey is the frontmatter key carrying the document ID
const IDKey = "uuid"

const delimiter = "---"

// ErrUnterminatedFrontmatter is returned when an opening delimiter has no match
var ErrUnterminatedFrontmatter = errors.New("frontmatter started but no closing delimiter found")

// ParseMarkdown reads a markdown document. A missing ID is generated, so the
// returned snapshot always has one. Metadata values are normalized.
func ParseMarkdown(r io.Reader) (*models.Snapshot, error) {
	snap, _, err := parse(r)
	return snap, err
}

// parse reads a document and reports whether the ID came from the frontmatter.
func parse(r io.Reader) (*models.Snapshot, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read document: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	meta := models.Metadata{}
	body := text
	if text == delimiter || strings.HasPrefix(text, delimiter+"\n") {
		front, rest, err := splitFrontmatter(text)
		if err != nil {
			return nil, false, err
		}
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(front), &raw); err != nil {
			return nil, false, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		meta = models.NormalizeMetadata(raw)
		body = rest
	}

	id := ""
	if v, ok := meta[IDKey]; ok {
		if v != nil {
			id = strings.TrimSpace(fmt.Sprint(v))
		}
		delete(meta, IDKey)
	}
	hadID := id != ""
	if !hadID {
		id = uuid.NewString()
	}

	return &models.Snapshot{
		ID:       id,
		Metadata: meta,
		Content:  models.SplitLines(body),
	}, hadID, nil
}

// splitFrontmatter returns the YAML between the delimiters and the body after them.
func splitFrontmatter(text string) (string, string, error) {
	lines := strings.SplitAfter(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t\n") == delimiter {
			return strings.Join(lines[1:i], ""), strings.Join(lines[i+1:], ""), nil
		}
	}
	return "", "", ErrUnterminatedFrontmatter
}

// ReadFile parses the markdown document at path
func ReadFile(path string) (*models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := ParseMarkdown(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// ReadFileWithID parses the document at path and, when the file has no ID
// yet, writes the generated one back so later reads agree.
func ReadFileWithID(path string) (*models.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	snap, hadID, err := parse(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !hadID {
		if err := WriteFile(path, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Render serializes a snapshot. The ID is written first, followed by the
// metadata keys in sorted order.
func Render(snap *models.Snapshot) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	if snap.ID != "" {
		if err := appendField(doc, IDKey, snap.ID); err != nil {
			return nil, err
		}
	}
	for _, key := range models.SortedKeys(snap.Metadata) {
		if key == IDKey {
			continue
		}
		if err := appendField(doc, key, snap.Metadata[key]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if len(doc.Content) > 0 {
		buf.WriteString(delimiter + "\n")
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
		}
		buf.WriteString(delimiter + "\n")
	}
	buf.WriteString(snap.Body())
	return buf.Bytes(), nil
}

func appendField(doc *yaml.Node, key string, value any) error {
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &v)
	return nil
}

// WriteFile renders snap to path
func WriteFile(path string, snap *models.Snapshot) error {
	data, err := Render(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
