package diff

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// DetectChangesDeep is DetectChanges with recursion into nested maps.
// Nested keys are reported as dotted paths, e.g. "Modified field: hero.cta.label".
func DetectChangesDeep(oldValue, newValue any) []string {
	o, oldIsMap := asMap(oldValue)
	n, newIsMap := asMap(newValue)
	if !oldIsMap || !newIsMap {
		return DetectChanges(oldValue, newValue)
	}

	var p pathDiff
	p.walk("", o, n)

	changes := []string{}
	if len(p.added) > 0 {
		changes = append(changes, fmt.Sprintf(msgAddedFields, strings.Join(p.added, ", ")))
	}
	if len(p.removed) > 0 {
		changes = append(changes, fmt.Sprintf(msgRemovedFields, strings.Join(p.removed, ", ")))
	}
	for _, path := range p.modified {
		changes = append(changes, fmt.Sprintf(msgModifiedField, path))
	}
	return changes
}

type pathDiff struct {
	added    []string
	removed  []string
	modified []string
}

func (p *pathDiff) walk(prefix string, oldMap, newMap map[string]any) {
	keys := make([]string, 0, len(oldMap)+len(newMap))
	seen := make(map[string]struct{}, len(oldMap)+len(newMap))
	for k := range oldMap {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range newMap {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		oldVal, inOld := oldMap[key]
		newVal, inNew := newMap[key]
		switch {
		case !inOld:
			p.added = append(p.added, path)
		case !inNew:
			p.removed = append(p.removed, path)
		case reflect.DeepEqual(oldVal, newVal):
		default:
			om, oldIsMap := asMap(oldVal)
			nm, newIsMap := asMap(newVal)
			if oldIsMap && newIsMap {
				p.walk(path, om, nm)
				continue
			}
			p.modified = append(p.modified, path)
		}
	}
}
