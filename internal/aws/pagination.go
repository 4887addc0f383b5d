package aws

import (
	"context"
	"fmt"

	"github.com/eleven-am/warden/internal/domain"
)

// CollectPages drains a paginator. When maxItems is positive and the pages
// hold more than maxItems items it fails with domain.ErrResultLimit instead of
// returning a partial list.
func CollectPages[Output any, Item any](
	ctx context.Context,
	maxItems int,
	hasMore func() bool,
	nextPage func(context.Context) (Output, error),
	extract func(Output) []Item,
) ([]Item, error) {
	var items []Item
	for hasMore() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := nextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, extract(page)...)
		if maxItems > 0 && len(items) > maxItems {
			return nil, fmt.Errorf("%w: more than %d results", domain.ErrResultLimit, maxItems)
		}
	}
	return items, nil
}
