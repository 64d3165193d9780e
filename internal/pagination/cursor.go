package pagination

import "context"

// CursorFunc fetches the page starting at cursor. It returns the page items,
// the cursor of the following page and whether the walk is complete. next must
// be greater than cursor unless done is set.
type CursorFunc[T any] func(ctx context.Context, cursor int64) (items []T, next int64, done bool, err error)

// Cursor walks a monotonically advancing cursor starting at start. maxPages
// of zero means no page limit; reaching the limit before done sets Truncated.
func Cursor[T any](ctx context.Context, start int64, fetch CursorFunc[T], maxPages int) Result[T] {
	var res Result[T]
	cursor := start
	for pages := 0; ; pages++ {
		if maxPages > 0 && pages >= maxPages {
			res.Truncated = true
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			res.Err = err
			return res
		}

		items, next, done, err := fetch(ctx, cursor)
		if err != nil {
			res.Truncated = true
			res.Err = err
			return res
		}
		res.Items = append(res.Items, items...)
		if done {
			return res
		}
		if next <= cursor {
			// A stalled cursor would loop forever.
			res.Truncated = true
			return res
		}
		cursor = next
	}
}
