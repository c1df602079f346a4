package internal

import (
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// ThreadTree arranges the statuses of a conversation into reply trees using
// their in_reply_to_id links.
type ThreadTree struct {
	roots    []*types.Status
	children map[string][]*types.Status
	byID     map[string]*types.Status
}

// NewThreadTree builds a tree from a focus status and its context. Any of the
// arguments may be nil. Statuses whose parent is not part of the thread become
// roots; duplicate IDs keep their first occurrence.
func NewThreadTree(focus *types.Status, ctx *types.Context) *ThreadTree {
	var all []*types.Status
	if ctx != nil {
		all = append(all, ctx.Ancestors...)
	}
	if focus != nil {
		all = append(all, focus)
	}
	if ctx != nil {
		all = append(all, ctx.Descendants...)
	}
	return NewThreadTreeFromStatuses(all)
}

// NewThreadTreeFromStatuses builds a tree from an arbitrary set of statuses,
// keeping their relative order among siblings.
func NewThreadTreeFromStatuses(statuses []*types.Status) *ThreadTree {
	tt := &ThreadTree{
		children: make(map[string][]*types.Status),
		byID:     make(map[string]*types.Status),
	}

	var ordered []*types.Status
	for _, s := range statuses {
		if s == nil || s.ID == "" {
			continue
		}
		if _, dup := tt.byID[s.ID]; dup {
			continue
		}
		tt.byID[s.ID] = s
		ordered = append(ordered, s)
	}

	for _, s := range ordered {
		parent := s.ParentID()
		if _, ok := tt.byID[parent]; ok && parent != s.ID {
			tt.children[parent] = append(tt.children[parent], s)
			continue
		}
		tt.roots = append(tt.roots, s)
	}

	// Statuses caught in a reply cycle are unreachable from any root; the
	// first of each cycle is promoted so that every status is visited.
	reached := make(map[string]bool, len(ordered))
	tt.walk(tt.roots, 0, reached, func(*types.Status, int) bool { return true })
	for _, s := range ordered {
		if reached[s.ID] {
			continue
		}
		tt.roots = append(tt.roots, s)
		tt.walk([]*types.Status{s}, 0, reached, func(*types.Status, int) bool { return true })
	}
	return tt
}

// Flatten returns all statuses in depth-first order.
func (tt *ThreadTree) Flatten() []*types.Status {
	var result []*types.Status
	tt.Walk(func(s *types.Status, _ int) {
		result = append(result, s)
	})
	return result
}

// Filter returns statuses that match the given filter function.
func (tt *ThreadTree) Filter(filterFunc func(*types.Status) bool) []*types.Status {
	var result []*types.Status
	tt.Walk(func(s *types.Status, _ int) {
		if filterFunc(s) {
			result = append(result, s)
		}
	})
	return result
}

// Find returns the first status, in depth-first order, that matches the condition.
func (tt *ThreadTree) Find(condition func(*types.Status) bool) *types.Status {
	var found *types.Status
	tt.walk(tt.roots, 0, make(map[string]bool), func(s *types.Status, _ int) bool {
		if condition(s) {
			found = s
			return false
		}
		return true
	})
	return found
}

// GetByID returns a status by its ID.
func (tt *ThreadTree) GetByID(id string) *types.Status {
	return tt.byID[id]
}

// GetByAuthor returns all statuses posted by the account with the given acct.
func (tt *ThreadTree) GetByAuthor(acct string) []*types.Status {
	return tt.Filter(func(s *types.Status) bool {
		return s.Account != nil && s.Account.Acct == acct
	})
}

// Roots returns the statuses without a parent in the thread.
func (tt *ThreadTree) Roots() []*types.Status {
	return tt.roots
}

// Replies returns the direct replies to the given status.
func (tt *ThreadTree) Replies(id string) []*types.Status {
	return tt.children[id]
}

// Depth returns the maximum depth of the tree. A lone root has depth 0.
func (tt *ThreadTree) Depth() int {
	maxDepth := 0
	tt.Walk(func(_ *types.Status, depth int) {
		if depth > maxDepth {
			maxDepth = depth
		}
	})
	return maxDepth
}

// Count returns the total number of statuses in the tree.
func (tt *ThreadTree) Count() int {
	return len(tt.byID)
}

// Walk applies fn to each status in depth-first order along with its depth.
func (tt *ThreadTree) Walk(fn func(s *types.Status, depth int)) {
	tt.walk(tt.roots, 0, make(map[string]bool), func(s *types.Status, depth int) bool {
		fn(s, depth)
		return true
	})
}

// walk stops when fn returns false. seen guards against reply cycles.
func (tt *ThreadTree) walk(statuses []*types.Status, depth int, seen map[string]bool, fn func(*types.Status, int) bool) bool {
	for _, s := range statuses {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if !fn(s, depth) {
			return false
		}
		if !tt.walk(tt.children[s.ID], depth+1, seen, fn) {
			return false
		}
	}
	return true
}
