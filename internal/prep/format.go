// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prep

import (
	"context"
	"strings"

	"github.com/pdiddy/review-engine/internal/loadfmt"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Format is the baseline preparation endpoint. It reapplies the load
// formatting rules and fixes source-specific quirks that survive import,
// like URLs hidden in howpublished fields. Its changes always apply.
type Format struct {
	fmt *loadfmt.Formatter
}

// NewFormat returns the formatting endpoint.
func NewFormat() *Format {
	return &Format{fmt: loadfmt.New()}
}

func (f *Format) Name() string { return EndpointFormat }

func (f *Format) AlwaysApply() bool { return true }

func (f *Format) Prepare(_ context.Context, rec *types.Record) error {
	f.fmt.Run(rec)

	if hp := rec.Get("howpublished"); rec.Get(types.FieldURL) == "" &&
		strings.Contains(strings.ToLower(hp), "url") {
		url := strings.TrimSuffix(strings.TrimPrefix(hp, `\url{`), "}")
		rec.Set(types.FieldURL, url)
		rec.Remove("howpublished")
	}

	if rec.Type == "webpage" || (rec.Type == "misc" && rec.Get(types.FieldURL) != "") {
		rec.Type = "online"
	}
	return nil
}
