package mastodon

import (
	"context"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const (
	homeTimelinePath   = "api/v1/timelines/home"
	publicTimelinePath = "api/v1/timelines/public"
)

// HomeTimeline returns statuses from followed accounts, newest first.
func (c *Client) HomeTimeline(ctx context.Context, req *types.TimelineRequest) (*Page[*types.Status], error) {
	return c.timeline(ctx, "get home timeline", homeTimelinePath, req)
}

// PublicTimeline returns the federated timeline, or the local one when
// req.Local is set.
func (c *Client) PublicTimeline(ctx context.Context, req *types.TimelineRequest) (*Page[*types.Status], error) {
	return c.timeline(ctx, "get public timeline", publicTimelinePath, req)
}

// HashtagTimeline returns public statuses tagged with tag. A leading '#' is
// accepted.
func (c *Client) HashtagTimeline(ctx context.Context, tag string, req *types.TimelineRequest) (*Page[*types.Status], error) {
	tag, err := c.validator.ValidateHashtag(tag)
	if err != nil {
		return nil, err
	}
	return c.timeline(ctx, "get hashtag timeline", "api/v1/timelines/tag/"+tag, req)
}

// ListTimeline returns statuses from the members of a list.
func (c *Client) ListTimeline(ctx context.Context, listID string, req *types.TimelineRequest) (*Page[*types.Status], error) {
	if err := c.validator.ValidateID("list_id", listID); err != nil {
		return nil, err
	}
	return c.timeline(ctx, "get list timeline", "api/v1/timelines/list/"+listID, req)
}

func (c *Client) timeline(ctx context.Context, op, path string, req *types.TimelineRequest) (*Page[*types.Status], error) {
	if err := c.validateTimeline(req); err != nil {
		return nil, err
	}
	return getPage[*types.Status](ctx, c, op, path, timelineParams(req))
}

func (c *Client) validateTimeline(req *types.TimelineRequest) error {
	if req == nil {
		return nil
	}
	return c.validator.ValidatePagination(&req.Pagination, internal.MaxTimelineLimit)
}

func timelineParams(req *types.TimelineRequest) Params {
	if req == nil {
		return Params{}
	}
	params := paginationParams(&req.Pagination)
	if req.Local {
		params["local"] = true
	}
	if req.Remote {
		params["remote"] = true
	}
	if req.OnlyMedia {
		params["only_media"] = true
	}
	return params
}
