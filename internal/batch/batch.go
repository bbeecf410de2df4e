// Package batch regroups a flat stream of (parent, child) pairs into
// per-parent records, one bounded window at a time.
package batch

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

const (
	MinWindow = 5
	MaxWindow = 600
)

// Pair is one child together with the parent it was discovered under.
type Pair[P, C any] struct {
	Parent P
	Child  C
}

// StructuralKey identifies a parent by value: two parents with the same
// canonical encoding belong to the same group.
func StructuralKey[P any](p P) string {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%#v", p)
	}
	return string(data)
}

// Clamp bounds a window size to [MinWindow, MaxWindow].
func Clamp(size int) int {
	return max(MinWindow, min(size, MaxWindow))
}

// Group consumes pairs in windows of size (clamped) and yields one record per
// distinct parent of each window, parents in first-seen order and children in
// arrival order. A parent whose children span windows yields one record per
// window.
//
// When the upstream fails mid-window, the pairs already received are grouped;
// if the error is a *checkpoint.ResumableFailure those records are appended to
// its Partial, otherwise they are yielded first. The error is then yielded and
// ends the sequence.
func Group[P, C any](pairs iter.Seq2[Pair[P, C], error], size int, build func(P, []C) domain.EnrichedRecord) iter.Seq2[domain.EnrichedRecord, error] {
	size = Clamp(size)
	return func(yield func(domain.EnrichedRecord, error) bool) {
		window := make([]Pair[P, C], 0, size)
		for pair, err := range pairs {
			if err != nil {
				partial := groupWindow(window, build)
				if f, ok := checkpoint.AsResumable(err); ok {
					f.Partial = append(f.Partial, partial...)
				} else {
					for _, r := range partial {
						if !yield(r, nil) {
							return
						}
					}
				}
				yield(domain.EnrichedRecord{}, err)
				return
			}

			window = append(window, pair)
			if len(window) < size {
				continue
			}
			for _, r := range groupWindow(window, build) {
				if !yield(r, nil) {
					return
				}
			}
			window = window[:0]
		}
		for _, r := range groupWindow(window, build) {
			if !yield(r, nil) {
				return
			}
		}
	}
}

type group[P, C any] struct {
	parent   P
	children []C
}

func groupWindow[P, C any](window []Pair[P, C], build func(P, []C) domain.EnrichedRecord) []domain.EnrichedRecord {
	if len(window) == 0 {
		return nil
	}
	var order []string
	groups := make(map[string]*group[P, C])
	for _, pair := range window {
		key := StructuralKey(pair.Parent)
		g, ok := groups[key]
		if !ok {
			g = &group[P, C]{parent: pair.Parent}
			groups[key] = g
			order = append(order, key)
		}
		g.children = append(g.children, pair.Child)
	}

	records := make([]domain.EnrichedRecord, 0, len(order))
	for _, key := range order {
		g := groups[key]
		records = append(records, build(g.parent, g.children))
	}
	return records
}
