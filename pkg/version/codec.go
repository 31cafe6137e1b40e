package version

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nainya/contentver/pkg/docstore"
)

// Persisted field names
const (
	fieldPageType    = "pageType"
	fieldField       = "field"
	fieldOldValue    = "oldValue"
	fieldNewValue    = "newValue"
	fieldAuthor      = "author"
	fieldAuthorEmail = "authorEmail"
	fieldTimestamp   = "timestamp"
	fieldSequence    = "sequence"
	fieldChanges     = "changes"
	fieldApproved    = "approved"
	fieldApprovedBy  = "approvedBy"
	fieldApprovedAt  = "approvedAt"
	fieldComment     = "comment"
)

// record mirrors the stored document. Times are unix microseconds so every
// backend can order and compare them as plain numbers.
type record struct {
	PageType    string   `mapstructure:"pageType"`
	Field       string   `mapstructure:"field"`
	OldValue    any      `mapstructure:"oldValue"`
	NewValue    any      `mapstructure:"newValue"`
	Author      string   `mapstructure:"author"`
	AuthorEmail string   `mapstructure:"authorEmail"`
	Timestamp   int64    `mapstructure:"timestamp"`
	Sequence    int64    `mapstructure:"sequence"`
	Changes     []string `mapstructure:"changes"`
	Approved    bool     `mapstructure:"approved"`
	ApprovedBy  string   `mapstructure:"approvedBy"`
	ApprovedAt  *int64   `mapstructure:"approvedAt"`
	Comment     string   `mapstructure:"comment"`
}

func encode(v *ContentVersion) map[string]any {
	var approvedAt any
	if v.ApprovedAt != nil {
		approvedAt = v.ApprovedAt.UnixMicro()
	}

	return map[string]any{
		fieldPageType:    v.PageType,
		fieldField:       v.Field,
		fieldOldValue:    v.OldValue,
		fieldNewValue:    v.NewValue,
		fieldAuthor:      v.Author,
		fieldAuthorEmail: v.AuthorEmail,
		fieldTimestamp:   v.Timestamp.UnixMicro(),
		fieldSequence:    v.Sequence,
		fieldChanges:     v.Changes,
		fieldApproved:    v.Approved,
		fieldApprovedBy:  v.ApprovedBy,
		fieldApprovedAt:  approvedAt,
		fieldComment:     v.Comment,
	}
}

func decode(rec docstore.Record) (*ContentVersion, error) {
	var r record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &r,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(rec.Data); err != nil {
		return nil, fmt.Errorf("decode version %s: %w", rec.ID, err)
	}

	v := &ContentVersion{
		ID:          rec.ID,
		PageType:    r.PageType,
		Field:       r.Field,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Author:      r.Author,
		AuthorEmail: r.AuthorEmail,
		Timestamp:   time.UnixMicro(r.Timestamp).UTC(),
		Sequence:    r.Sequence,
		Changes:     r.Changes,
		Approved:    r.Approved,
		ApprovedBy:  r.ApprovedBy,
		Comment:     r.Comment,
	}
	if v.Changes == nil {
		v.Changes = []string{}
	}
	if r.ApprovedAt != nil {
		at := time.UnixMicro(*r.ApprovedAt).UTC()
		v.ApprovedAt = &at
	}
	return v, nil
}
