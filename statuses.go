package mastodon

import (
	"context"
	"net/http"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const idempotencyHeader = "Idempotency-Key"

// PostStatus publishes a new status. The request is sent with an
// Idempotency-Key header so that a resent request never posts twice.
// Use ScheduleStatus when req.ScheduledAt is set.
func (c *Client) PostStatus(ctx context.Context, req *types.StatusRequest) (*types.Status, error) {
	if req != nil && req.ScheduledAt != nil {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "scheduled_at", Message: "use ScheduleStatus for scheduled posts"}
	}
	call, err := c.statusCall(req)
	if err != nil {
		return nil, err
	}
	var status types.Status
	if _, err := c.call(ctx, "post status", call, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ScheduleStatus schedules a status for req.ScheduledAt, which must lie at
// least five minutes in the future.
func (c *Client) ScheduleStatus(ctx context.Context, req *types.StatusRequest) (*types.ScheduledStatus, error) {
	if req != nil && req.ScheduledAt == nil {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "scheduled_at", Message: "scheduled time is required"}
	}
	call, err := c.statusCall(req)
	if err != nil {
		return nil, err
	}
	var scheduled types.ScheduledStatus
	if _, err := c.call(ctx, "schedule status", call, &scheduled); err != nil {
		return nil, err
	}
	return &scheduled, nil
}

func (c *Client) statusCall(req *types.StatusRequest) (*internal.Call, error) {
	if err := c.validator.ValidateStatusRequest(req, c.now()); err != nil {
		return nil, err
	}

	params := Params{"status": req.Status}
	if req.InReplyToID != "" {
		params["in_reply_to_id"] = req.InReplyToID
	}
	if len(req.MediaIDs) > 0 {
		params["media_ids"] = req.MediaIDs
	}
	if req.Sensitive {
		params["sensitive"] = true
	}
	if req.SpoilerText != "" {
		params["spoiler_text"] = req.SpoilerText
	}
	if req.Visibility != "" {
		params["visibility"] = req.Visibility
	}
	if req.Language != "" {
		params["language"] = req.Language
	}
	if req.ScheduledAt != nil {
		params["scheduled_at"] = req.ScheduledAt
	}
	if p := req.Poll; p != nil {
		params["poll[options]"] = p.Options
		params["poll[expires_in]"] = p.ExpiresIn
		params["poll[multiple]"] = p.Multiple
		params["poll[hide_totals]"] = p.HideTotals
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.newIdempotencyKey()
	}
	header := http.Header{}
	header.Set(idempotencyHeader, key)

	return &internal.Call{Method: http.MethodPost, Path: "api/v1/statuses", Params: params, Header: header}, nil
}

// Status retrieves a single status.
func (c *Client) Status(ctx context.Context, id string) (*types.Status, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	var status types.Status
	if _, err := c.get(ctx, "get status", "api/v1/statuses/"+id, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DeleteStatus deletes one of the user's statuses. The returned status
// carries its source text so it can be redrafted.
func (c *Client) DeleteStatus(ctx context.Context, id string) (*types.Status, error) {
	return c.statusAction(ctx, "delete status", http.MethodDelete, id, "")
}

// Favourite marks a status as a favourite.
func (c *Client) Favourite(ctx context.Context, id string) (*types.Status, error) {
	return c.statusAction(ctx, "favourite status", http.MethodPost, id, "favourite")
}

// Unfavourite removes a status from the favourites.
func (c *Client) Unfavourite(ctx context.Context, id string) (*types.Status, error) {
	return c.statusAction(ctx, "unfavourite status", http.MethodPost, id, "unfavourite")
}

// Reblog boosts a status. The result is the reblog wrapping the original.
func (c *Client) Reblog(ctx context.Context, id string) (*types.Status, error) {
	return c.statusAction(ctx, "reblog status", http.MethodPost, id, "reblog")
}

// Bookmark adds a status to the user's bookmarks.
func (c *Client) Bookmark(ctx context.Context, id string) (*types.Status, error) {
	return c.statusAction(ctx, "bookmark status", http.MethodPost, id, "bookmark")
}

func (c *Client) statusAction(ctx context.Context, op, method, id, action string) (*types.Status, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	path := "api/v1/statuses/" + id
	if action != "" {
		path += "/" + action
	}
	var status types.Status
	if _, err := c.call(ctx, op, &internal.Call{Method: method, Path: path}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StatusContext returns the ancestors and descendants of a status.
func (c *Client) StatusContext(ctx context.Context, id string) (*types.Context, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	var thread types.Context
	if _, err := c.get(ctx, "get status context", "api/v1/statuses/"+id+"/context", nil, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// Thread loads a status together with its context and arranges the
// conversation as a reply tree.
func (c *Client) Thread(ctx context.Context, id string) (ThreadTree, error) {
	focus, err := c.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	thread, err := c.StatusContext(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewThreadTree(focus, thread), nil
}
