// Package pagination turns page-at-a-time remote listings into lazy,
// forward-only sequences. Pages are fetched strictly one after another and
// only when the consumer asks for the next element.
package pagination

import (
	"errors"
	"iter"
)

// ErrConsumed is yielded when a sequence is ranged over a second time.
var ErrConsumed = errors.New("pagination: sequence already consumed")

// CursorPage is one page of a cursor-paginated listing. A nil Cursor marks
// the last page.
type CursorPage[T any] struct {
	Data   []T
	Cursor *string
}

// Start is the cursor that requests the first page.
func Start() *string {
	s := ""
	return &s
}

// Cursor streams every item of a cursor-paginated listing. A nil start yields
// nothing and never calls fetch. The cursor returned by a page is passed
// verbatim to the next fetch.
func Cursor[T any](start *string, fetch func(cursor string) (CursorPage[T], error)) iter.Seq2[T, error] {
	consumed := false
	return func(yield func(T, error) bool) {
		var zero T
		if consumed {
			yield(zero, ErrConsumed)
			return
		}
		consumed = true

		for cursor := start; cursor != nil; {
			page, err := fetch(*cursor)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range page.Data {
				if !yield(item, nil) {
					return
				}
			}
			cursor = page.Cursor
		}
	}
}

// Offset streams every item of an offset-paginated listing. The offset starts
// at zero and advances by pageSize after every call, whatever the number of
// items returned. The first empty page ends the sequence.
func Offset[T any](pageSize int, fetch func(skip int) ([]T, error)) iter.Seq2[T, error] {
	consumed := false
	return func(yield func(T, error) bool) {
		var zero T
		if consumed {
			yield(zero, ErrConsumed)
			return
		}
		consumed = true

		for skip := 0; ; skip += pageSize {
			items, err := fetch(skip)
			if err != nil {
				yield(zero, err)
				return
			}
			if len(items) == 0 {
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
