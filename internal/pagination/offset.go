// Package pagination walks paged upstream endpoints and reports whether the
// walk reached the natural end of the data.
package pagination

import (
	"context"
	"errors"

	"github.com/alanyoungcy/polyseries/internal/domain"
)

// Result is the outcome of a walk. Truncated is set when the data may continue
// past what was collected: an offset cap was hit, a page failed, or ctx ended.
// Err is the page error that stopped the walk, if any; Items still holds
// everything collected before it.
type Result[T any] struct {
	Items     []T
	Truncated bool
	Err       error
}

// OffsetFunc fetches up to limit items starting at offset.
type OffsetFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// OffsetOptions bounds an offset walk.
type OffsetOptions struct {
	PageSize int
	// OffsetCap is the highest offset the upstream serves. Zero means uncapped.
	OffsetCap int
	// MaxItems stops the walk once that many items are collected. Zero means
	// no limit. Stopping here is a caller choice and does not set Truncated.
	MaxItems int
}

// Offset walks an offset/limit endpoint from offset 0.
//
// The walk ends on the first empty page. A short page is not treated as the
// end because some upstreams return fewer items than requested mid-stream.
// When the upstream rejects the next offset with ErrOffsetCapExceeded right
// after a short page, the walk is complete rather than truncated.
func Offset[T any](ctx context.Context, fetch OffsetFunc[T], opts OffsetOptions) Result[T] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var res Result[T]
	offset := 0
	lastShort := false
	for {
		if opts.MaxItems > 0 && len(res.Items) >= opts.MaxItems {
			res.Items = res.Items[:opts.MaxItems]
			return res
		}
		if opts.OffsetCap > 0 && offset >= opts.OffsetCap {
			res.Truncated = true
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			res.Err = err
			return res
		}

		limit := pageSize
		if opts.OffsetCap > 0 && opts.OffsetCap-offset < limit {
			limit = opts.OffsetCap - offset
		}

		page, err := fetch(ctx, offset, limit)
		if err != nil {
			if errors.Is(err, domain.ErrOffsetCapExceeded) {
				res.Truncated = !lastShort
				return res
			}
			res.Truncated = true
			res.Err = err
			return res
		}
		if len(page) == 0 {
			return res
		}
		res.Items = append(res.Items, page...)
		offset += len(page)
		lastShort = len(page) < limit
	}
}
