package mastodon

import (
	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// ThreadTree provides utility methods for working with a conversation.
type ThreadTree interface {
	Flatten() []*types.Status
	Filter(func(*types.Status) bool) []*types.Status
	Find(func(*types.Status) bool) *types.Status
	GetByID(string) *types.Status
	GetByAuthor(string) []*types.Status
	Roots() []*types.Status
	Replies(string) []*types.Status
	Depth() int
	Count() int
	Walk(func(*types.Status, int))
}

// NewThreadTree arranges a status and its context into a reply tree.
func NewThreadTree(focus *types.Status, thread *types.Context) ThreadTree {
	return internal.NewThreadTree(focus, thread)
}

// NewThreadTreeFromStatuses builds a tree from any set of statuses, e.g. a
// page of a timeline.
func NewThreadTreeFromStatuses(statuses []*types.Status) ThreadTree {
	return internal.NewThreadTreeFromStatuses(statuses)
}
