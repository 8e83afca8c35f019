// Package paging provides helpers for cursor-paginated upstream APIs.
package paging

import (
	"context"
	"strings"
)

// SizeConfig bounds a requested page size.
type SizeConfig struct {
	Default int
	Max     int
}

// ClampSize applies defaults and limits to a requested page size.
func ClampSize(value int, cfg SizeConfig) int {
	size := value
	if size <= 0 {
		size = cfg.Default
	}
	if cfg.Max > 0 && size > cfg.Max {
		size = cfg.Max
	}
	if size <= 0 {
		size = 1
	}
	return size
}

// FetchFunc returns one page of items and the cursor of the next page. An
// empty cursor ends the walk.
type FetchFunc[R any] func(ctx context.Context, cursor string) (items []R, next string, err error)

// Collect walks every page, mapping each item through mapItem. Items where
// mapItem reports false are skipped.
func Collect[T any, R any](ctx context.Context, fetch FetchFunc[R], mapItem func(R) (T, bool)) ([]T, error) {
	return collect(ctx, 0, fetch, mapItem)
}

// CollectMax is like Collect but stops after maxPages pages.
func CollectMax[T any, R any](ctx context.Context, maxPages int, fetch FetchFunc[R], mapItem func(R) (T, bool)) ([]T, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	return collect(ctx, maxPages, fetch, mapItem)
}

func collect[T any, R any](ctx context.Context, maxPages int, fetch FetchFunc[R], mapItem func(R) (T, bool)) ([]T, error) {
	var result []T
	cursor := ""
	for page := 0; maxPages == 0 || page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if mapped, ok := mapItem(item); ok {
				result = append(result, mapped)
			}
		}
		next = strings.TrimSpace(next)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return result, nil
}
