package diff

import (
	"fmt"
	"strings"
)

// NoChangesSummary is shown for versions whose change list is empty
const NoChangesSummary = "No changes detected"

// Summarize condenses a change list into one line for history views
func Summarize(changes []string) string {
	switch len(changes) {
	case 0:
		return NoChangesSummary
	case 1:
		return changes[0]
	}

	head := changes
	if len(head) > 2 {
		head = head[:2]
	}

	summary := fmt.Sprintf("%d changes: %s", len(changes), strings.Join(head, ", "))
	if len(changes) > 2 {
		summary += "..."
	}
	return summary
}
