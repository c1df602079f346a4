package mastodon

import (
	"context"
	"strconv"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// Cursor locates a neighbouring page, as advertised by the Link header.
type Cursor = internal.PageCursor

// Page is one page of a paginated endpoint.
type Page[T any] struct {
	Items []T
	// Next points at older items, Prev at newer ones. Nil when the server
	// advertised no such page.
	Next *Cursor
	Prev *Cursor
}

// HasNext reports whether an older page is available.
func (p *Page[T]) HasNext() bool {
	return p != nil && p.Next != nil
}

// FetchPage loads the page at cursor, typically Page.Next or Page.Prev of a
// previous result.
func FetchPage[T any](ctx context.Context, c *Client, cursor *Cursor) (*Page[T], error) {
	if cursor == nil {
		return &Page[T]{}, nil
	}
	return getPage[T](ctx, c, "fetch page", cursor.Path, cursor.Params)
}

func getPage[T any](ctx context.Context, c *Client, op, path string, params Params) (*Page[T], error) {
	var items []T
	resp, err := c.get(ctx, op, path, params, &items)
	if err != nil {
		return nil, err
	}
	links := c.parser.ParseLinks(resp.Header)
	return &Page[T]{Items: items, Next: links.Next, Prev: links.Prev}, nil
}

// paginationParams converts cursor fields, omitting empty ones.
func paginationParams(p *types.Pagination) Params {
	params := Params{}
	if p == nil {
		return params
	}
	if p.MaxID != "" {
		params["max_id"] = p.MaxID
	}
	if p.MinID != "" {
		params["min_id"] = p.MinID
	}
	if p.SinceID != "" {
		params["since_id"] = p.SinceID
	}
	if p.Limit > 0 {
		params["limit"] = strconv.Itoa(p.Limit)
	}
	return params
}
