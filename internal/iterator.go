package internal

import (
	"context"
	"errors"

	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// ErrIteratorDone is returned by Next once an iterator is exhausted.
var ErrIteratorDone = errors.New("no more items available")

// PageFetcher loads the page at cursor and reports the adjacent cursors.
type PageFetcher[T any] func(ctx context.Context, cursor *PageCursor) ([]T, Links, error)

// PageIterator walks a paginated endpoint by following rel="next" links.
type PageIterator[T any] struct {
	ctx       context.Context
	fetch     PageFetcher[T]
	next      *PageCursor
	buffer    []T
	bufferIdx int
	hasMore   bool
	maxItems  int
	yielded   int
	err       error
}

// NewPageIterator creates an iterator starting at first. maxItems <= 0 means
// no limit.
func NewPageIterator[T any](ctx context.Context, first *PageCursor, maxItems int, fetch PageFetcher[T]) *PageIterator[T] {
	return &PageIterator[T]{
		ctx:      ctx,
		fetch:    fetch,
		next:     first,
		hasMore:  first != nil,
		maxItems: maxItems,
	}
}

// HasNext reports whether Next may return another item. A true result can
// still be followed by ErrIteratorDone if the next page turns out empty.
func (it *PageIterator[T]) HasNext() bool {
	if it.err != nil || it.limitReached() {
		return false
	}
	return it.bufferIdx < len(it.buffer) || it.hasMore
}

// Next returns the next item, fetching a new page when the buffer is drained.
func (it *PageIterator[T]) Next() (T, error) {
	var zero T
	if it.err != nil {
		return zero, it.err
	}
	if it.limitReached() {
		return zero, ErrIteratorDone
	}

	for it.bufferIdx >= len(it.buffer) {
		if !it.hasMore {
			return zero, ErrIteratorDone
		}
		items, links, err := it.fetch(it.ctx, it.next)
		if err != nil {
			it.err = err
			return zero, err
		}
		it.buffer = items
		it.bufferIdx = 0
		it.next = links.Next
		if len(items) == 0 || links.Next == nil {
			it.hasMore = false
		}
	}

	item := it.buffer[it.bufferIdx]
	it.bufferIdx++
	it.yielded++
	return item, nil
}

// Err returns the fetch error that stopped the iteration, if any.
func (it *PageIterator[T]) Err() error {
	return it.err
}

func (it *PageIterator[T]) limitReached() bool {
	return it.maxItems > 0 && it.yielded >= it.maxItems
}

// ThreadIteratorOptions provides options for thread iteration.
type ThreadIteratorOptions struct {
	DepthFirst bool
	FilterFunc func(*types.Status) bool
	MaxDepth   int
}

type depthStatus struct {
	status *types.Status
	depth  int
}

// ThreadIterator traverses a ThreadTree one status at a time.
type ThreadIterator struct {
	tree       *ThreadTree
	queue      []depthStatus
	visited    map[string]bool
	depthFirst bool
	filterFunc func(*types.Status) bool
	maxDepth   int
}

// NewThreadIterator creates an iterator over tree. Nil opts means depth-first
// without filtering.
func NewThreadIterator(tree *ThreadTree, opts *ThreadIteratorOptions) *ThreadIterator {
	if opts == nil {
		opts = &ThreadIteratorOptions{DepthFirst: true}
	}
	it := &ThreadIterator{
		tree:       tree,
		visited:    make(map[string]bool),
		depthFirst: opts.DepthFirst,
		filterFunc: opts.FilterFunc,
		maxDepth:   opts.MaxDepth,
	}
	it.push(tree.Roots(), 0)
	return it
}

// HasNext reports whether statuses remain. With a filter set, Next may still
// return ErrIteratorDone if none of the remaining statuses match.
func (it *ThreadIterator) HasNext() bool {
	return len(it.queue) > 0
}

// Next returns the next status. Replies of a filtered-out status are skipped
// along with it.
func (it *ThreadIterator) Next() (*types.Status, int, error) {
	for len(it.queue) > 0 {
		var cur depthStatus
		if it.depthFirst {
			cur = it.queue[len(it.queue)-1]
			it.queue = it.queue[:len(it.queue)-1]
		} else {
			cur = it.queue[0]
			it.queue = it.queue[1:]
		}

		if it.visited[cur.status.ID] {
			continue
		}
		it.visited[cur.status.ID] = true

		if it.filterFunc != nil && !it.filterFunc(cur.status) {
			continue
		}
		if it.maxDepth == 0 || cur.depth < it.maxDepth {
			it.push(it.tree.Replies(cur.status.ID), cur.depth+1)
		}
		return cur.status, cur.depth, nil
	}
	return nil, 0, ErrIteratorDone
}

func (it *ThreadIterator) push(statuses []*types.Status, depth int) {
	if it.depthFirst {
		for i := len(statuses) - 1; i >= 0; i-- {
			it.queue = append(it.queue, depthStatus{statuses[i], depth})
		}
		return
	}
	for _, s := range statuses {
		it.queue = append(it.queue, depthStatus{s, depth})
	}
}
