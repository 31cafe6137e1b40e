// ABOUTME: Change detection between two revisions of a content field
// ABOUTME: Produces the human-readable change list persisted with each version

package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// Change messages. History text is stored verbatim, so these must not drift.
const (
	msgContentModified = "Content modified"
	msgLengthChanged   = "Length changed from %d to %d characters"
	msgAddedFields     = "Added fields: %s"
	msgRemovedFields   = "Removed fields: %s"
	msgModifiedField   = "Modified field: %s"
)

// Mode selects how map values are compared
type Mode int

const (
	// ModeShallow compares maps one level deep (default)
	ModeShallow Mode = iota

	// ModeDeep descends into nested maps and reports dotted paths
	ModeDeep
)

// ParseMode parses a mode name ("shallow" or "deep")
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "shallow":
		return ModeShallow, nil
	case "deep":
		return ModeDeep, nil
	default:
		return ModeShallow, fmt.Errorf("diff: unknown mode %q", name)
	}
}

// String returns the mode name
func (m Mode) String() string {
	if m == ModeDeep {
		return "deep"
	}
	return "shallow"
}

// Detect runs the detector for the mode
func (m Mode) Detect(oldValue, newValue any) []string {
	if m == ModeDeep {
		return DetectChangesDeep(oldValue, newValue)
	}
	return DetectChanges(oldValue, newValue)
}

// DetectChanges returns the ordered change descriptions between two values.
// It never fails and returns an empty slice when nothing changed.
func DetectChanges(oldValue, newValue any) []string {
	if o, ok := oldValue.(string); ok {
		if n, ok := newValue.(string); ok {
			return stringChanges(o, n)
		}
	}

	if o, ok := asMap(oldValue); ok {
		if n, ok := asMap(newValue); ok {
			return mapChanges(o, n)
		}
	}

	if !reflect.DeepEqual(oldValue, newValue) {
		return []string{msgContentModified}
	}
	return []string{}
}

func stringChanges(oldValue, newValue string) []string {
	changes := []string{}

	oldLen := utf8.RuneCountInString(oldValue)
	newLen := utf8.RuneCountInString(newValue)
	if oldLen != newLen {
		changes = append(changes, fmt.Sprintf(msgLengthChanged, oldLen, newLen))
	}
	if oldValue != newValue {
		changes = append(changes, msgContentModified)
	}

	return changes
}

func mapChanges(oldMap, newMap map[string]any) []string {
	changes := []string{}

	var added, removed, modified []string
	for key := range newMap {
		if _, ok := oldMap[key]; !ok {
			added = append(added, key)
		}
	}
	for key, oldVal := range oldMap {
		newVal, ok := newMap[key]
		if !ok {
			removed = append(removed, key)
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			modified = append(modified, key)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)

	if len(added) > 0 {
		changes = append(changes, fmt.Sprintf(msgAddedFields, strings.Join(added, ", ")))
	}
	if len(removed) > 0 {
		changes = append(changes, fmt.Sprintf(msgRemovedFields, strings.Join(removed, ", ")))
	}
	for _, key := range modified {
		changes = append(changes, fmt.Sprintf(msgModifiedField, key))
	}

	return changes
}

// asMap accepts the two map shapes callers hand us before normalisation
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}
