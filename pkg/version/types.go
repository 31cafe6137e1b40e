// ABOUTME: Content version data model
// ABOUTME: One immutable record per edit of a (pageType, field) scope

package version

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxVersionsPerField bounds how many versions a scope keeps
	MaxVersionsPerField = 50

	// DefaultOverflowBuffer is how far past the bound retention reads per pass
	DefaultOverflowBuffer = 10

	// DefaultCollection is the document-store collection holding versions
	DefaultCollection = "content_versions"

	rollbackCommentFormat = "Rollback to version %s"
)

// Scope identifies one versioned content slot
type Scope struct {
	PageType string `json:"pageType"`
	Field    string `json:"field"`
}

// String returns "pageType/field"; it doubles as the sequencer key
func (s Scope) String() string {
	return s.PageType + "/" + s.Field
}

func (s Scope) validate() error {
	if strings.TrimSpace(s.PageType) == "" {
		return fmt.Errorf("%w: pageType is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(s.Field) == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidArgument)
	}
	return nil
}

// ContentVersion is a single recorded edit
type ContentVersion struct {
	ID          string     `json:"id"`
	PageType    string     `json:"pageType"`
	Field       string     `json:"field"`
	OldValue    any        `json:"oldValue"`
	NewValue    any        `json:"newValue"`
	Author      string     `json:"author"`
	AuthorEmail string     `json:"authorEmail"`
	Timestamp   time.Time  `json:"timestamp"`
	Sequence    int64      `json:"sequence"`
	Changes     []string   `json:"changes"`
	Approved    bool       `json:"approved"`
	ApprovedBy  string     `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	Comment     string     `json:"comment,omitempty"`
}

// Scope returns the version's scope
func (v *ContentVersion) Scope() Scope {
	return Scope{PageType: v.PageType, Field: v.Field}
}

// SaveRequest carries one edit to be recorded
type SaveRequest struct {
	PageType    string `json:"pageType"`
	Field       string `json:"field"`
	OldValue    any    `json:"oldValue"`
	NewValue    any    `json:"newValue"`
	Author      string `json:"author"`
	AuthorEmail string `json:"authorEmail"`
	Comment     string `json:"comment,omitempty"`
}

// Scope returns the request's scope
func (r SaveRequest) Scope() Scope {
	return Scope{PageType: r.PageType, Field: r.Field}
}

// HistoryEntry is the read-side projection shown in history views
type HistoryEntry struct {
	VersionID string    `json:"versionId"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
	Summary   string    `json:"summary"`
}
