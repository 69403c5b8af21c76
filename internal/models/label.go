package models

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// BumpType selects which component of a version label is incremented
type BumpType string

const (
	BumpMajor BumpType = "major"
	BumpMinor BumpType = "minor"
	BumpPatch BumpType = "patch" // Default
)

// InitialLabel is the label of the first version when none is requested
const InitialLabel = "1.0.0"

// ParseBumpType parses a bump name; empty means patch
func ParseBumpType(s string) (BumpType, error) {
	switch BumpType(strings.ToLower(strings.TrimSpace(s))) {
	case "", BumpPatch:
		return BumpPatch, nil
	case BumpMinor:
		return BumpMinor, nil
	case BumpMajor:
		return BumpMajor, nil
	}
	return "", fmt.Errorf("invalid bump type %q: expected major, minor or patch", s)
}

// ValidLabel reports whether s is a plain MAJOR.MINOR.PATCH label
func ValidLabel(s string) bool {
	v := "v" + s
	return semver.IsValid(v) && semver.Canonical(v) == v && semver.Prerelease(v) == ""
}

// ParseLabel splits a label into its numeric components
func ParseLabel(s string) (major, minor, patch int, err error) {
	if !ValidLabel(s) {
		return 0, 0, 0, fmt.Errorf("invalid version label %q: expected MAJOR.MINOR.PATCH", s)
	}
	parts := strings.Split(s, ".")
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid version label %q: %w", s, err)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

// CompareLabels returns -1, 0 or +1 by semantic version order.
// Both labels must be valid.
func CompareLabels(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}

// BumpLabel increments label by bump. An empty label yields InitialLabel.
func BumpLabel(label string, bump BumpType) (string, error) {
	if label == "" {
		return InitialLabel, nil
	}
	major, minor, patch, err := ParseLabel(label)
	if err != nil {
		return "", err
	}
	switch bump {
	case BumpMajor:
		major, minor, patch = major+1, 0, 0
	case BumpMinor:
		minor, patch = minor+1, 0
	case BumpPatch, "":
		patch++
	default:
		return "", fmt.Errorf("invalid bump type %q", bump)
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// MaxLabel returns the greatest valid label in labels, or "" if there is none
func MaxLabel(labels []string) string {
	max := ""
	for _, l := range labels {
		if !ValidLabel(l) {
			continue
		}
		if max == "" || CompareLabels(l, max) > 0 {
			max = l
		}
	}
	return max
}
