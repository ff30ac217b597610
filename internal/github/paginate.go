// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package github

import (
	"context"
	"fmt"
	"time"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// PageRequest asks for one page. Cursor is nil for the first page.
type PageRequest struct {
	Cursor *string
	Size   int
}

// Page is one page of a connection.
type Page[T any] struct {
	Items   []T
	HasMore bool
	Cursor  string
}

// PageFunc fetches one page, normally by calling Execute.
type PageFunc[T any] func(ctx context.Context, req PageRequest) (Page[T], Outcome)

// WalkOptions controls a cursor walk.
type WalkOptions[T any] struct {
	PageSize int

	// Watermark, when set, keeps only items whose Timestamp is strictly
	// after it. With Descending the walk also stops at the first page whose
	// last item is at or before the watermark.
	Watermark  time.Time
	Descending bool
	Timestamp  func(T) time.Time

	// Keep drops items after the watermark test, for example records whose
	// author account no longer exists.
	Keep func(T) bool

	// MaxItems stops the walk once more than MaxItems items were kept.
	// Zero means no limit.
	MaxItems int
}

// Walk follows a cursor connection page by page and hands each page's
// surviving items to visit. It stops when the connection is exhausted, a
// page comes back empty or NotFound, the watermark is crossed, or visit
// returns an error. A failed page aborts the walk with the outcome's error.
func Walk[T any](ctx context.Context, fetch PageFunc[T], opts WalkOptions[T], visit func([]T) error) error {
	watermark := !opts.Watermark.IsZero() && opts.Timestamp != nil

	var cursor *string
	kept := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", caterrors.ErrCancelled, err)
		}

		page, out := fetch(ctx, PageRequest{Cursor: cursor, Size: opts.PageSize})
		if out.Failed() {
			return out.Err
		}
		if out.Kind == KindNotFound || len(page.Items) == 0 {
			return nil
		}

		items := page.Items
		stop := false
		if watermark {
			if opts.Descending && !opts.Timestamp(items[len(items)-1]).After(opts.Watermark) {
				stop = true
			}
			items = filter(items, func(item T) bool {
				return opts.Timestamp(item).After(opts.Watermark)
			})
		}
		if opts.Keep != nil {
			items = filter(items, opts.Keep)
		}

		if len(items) > 0 {
			if err := visit(items); err != nil {
				return err
			}
			kept += len(items)
		}

		if stop || !page.HasMore || page.Cursor == "" {
			return nil
		}
		if opts.MaxItems > 0 && kept > opts.MaxItems {
			return nil
		}
		next := page.Cursor
		cursor = &next
	}
}

// Collect walks the whole connection and returns every surviving item in
// page order.
func Collect[T any](ctx context.Context, fetch PageFunc[T], opts WalkOptions[T]) ([]T, error) {
	var all []T
	err := Walk(ctx, fetch, opts, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
