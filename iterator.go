package mastodon

import (
	"context"
	"errors"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// ErrIteratorDone is returned by Next once an iterator is exhausted.
var ErrIteratorDone = internal.ErrIteratorDone

// Iterator walks a paginated endpoint one item at a time, following the
// rel="next" links of each page.
type Iterator[T any] struct {
	pages *internal.PageIterator[T]
}

// newIterator builds an iterator over path. A non-nil invalid is returned by
// the first Next before any request is sent.
func newIterator[T any](ctx context.Context, c *Client, op, path string, params Params, maxItems int, invalid error) *Iterator[T] {
	fetch := func(ctx context.Context, cursor *internal.PageCursor) ([]T, internal.Links, error) {
		if invalid != nil {
			return nil, internal.Links{}, invalid
		}
		var items []T
		resp, err := c.get(ctx, op, cursor.Path, cursor.Params, &items)
		if err != nil {
			return nil, internal.Links{}, err
		}
		return items, c.parser.ParseLinks(resp.Header), nil
	}
	first := &internal.PageCursor{Path: path, Params: params}
	return &Iterator[T]{pages: internal.NewPageIterator(ctx, first, maxItems, fetch)}
}

// HasNext returns true if there may be more items to iterate through.
func (it *Iterator[T]) HasNext() bool {
	return it.pages.HasNext()
}

// Next returns the next item in the iteration.
func (it *Iterator[T]) Next() (T, error) {
	return it.pages.Next()
}

// Error returns any error encountered during iteration.
func (it *Iterator[T]) Error() error {
	return it.pages.Err()
}

// Collect fetches all remaining items up to maxItems (<= 0 means all).
func (it *Iterator[T]) Collect(maxItems int) ([]T, error) {
	var items []T
	for it.HasNext() && (maxItems <= 0 || len(items) < maxItems) {
		item, err := it.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// NewHomeIterator creates an iterator over the home timeline. maxItems <= 0
// iterates until the server stops returning pages. Invalid arguments surface
// from the first Next.
func (c *Client) NewHomeIterator(ctx context.Context, req *types.TimelineRequest, maxItems int) *Iterator[*types.Status] {
	return newIterator[*types.Status](ctx, c, "get home timeline", homeTimelinePath, timelineParams(req), maxItems, c.validateTimeline(req))
}

// NewPublicIterator creates an iterator over the federated or local timeline.
func (c *Client) NewPublicIterator(ctx context.Context, req *types.TimelineRequest, maxItems int) *Iterator[*types.Status] {
	return newIterator[*types.Status](ctx, c, "get public timeline", publicTimelinePath, timelineParams(req), maxItems, c.validateTimeline(req))
}

// NewAccountStatusesIterator creates an iterator over an account's statuses.
func (c *Client) NewAccountStatusesIterator(ctx context.Context, accountID string, maxItems int) *Iterator[*types.Status] {
	invalid := c.validator.ValidateID("id", accountID)
	return newIterator[*types.Status](ctx, c, "get account statuses", "api/v1/accounts/"+accountID+"/statuses", nil, maxItems, invalid)
}

// NewNotificationIterator creates an iterator over the user's notifications.
func (c *Client) NewNotificationIterator(ctx context.Context, req *types.NotificationsRequest, maxItems int) *Iterator[*types.Notification] {
	return newIterator[*types.Notification](ctx, c, "get notifications", notificationsPath, notificationParams(req), maxItems, c.validateNotifications(req))
}

// ThreadIterator traverses a thread one status at a time.
type ThreadIterator = internal.ThreadIterator

// ThreadIteratorOptions controls the order, depth and filtering of a
// ThreadIterator.
type ThreadIteratorOptions = internal.ThreadIteratorOptions

// NewThreadIterator creates an iterator over a tree returned by Thread or
// NewThreadTree. Nil opts means depth-first over every status.
func NewThreadIterator(tree ThreadTree, opts *ThreadIteratorOptions) *ThreadIterator {
	if t, ok := tree.(*internal.ThreadTree); ok {
		return internal.NewThreadIterator(t, opts)
	}
	return internal.NewThreadIterator(internal.NewThreadTreeFromStatuses(tree.Flatten()), opts)
}
