package mastodon

import (
	"context"
	"net/http"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const notificationsPath = "api/v1/notifications"

// Notifications returns a page of the user's notifications, newest first.
func (c *Client) Notifications(ctx context.Context, req *types.NotificationsRequest) (*Page[*types.Notification], error) {
	if err := c.validateNotifications(req); err != nil {
		return nil, err
	}
	return getPage[*types.Notification](ctx, c, "get notifications", notificationsPath, notificationParams(req))
}

// Notification retrieves a single notification.
func (c *Client) Notification(ctx context.Context, id string) (*types.Notification, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	var n types.Notification
	if _, err := c.get(ctx, "get notification", notificationsPath+"/"+id, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DismissNotification removes one notification.
func (c *Client) DismissNotification(ctx context.Context, id string) error {
	if err := c.validator.ValidateID("id", id); err != nil {
		return err
	}
	call := &internal.Call{Method: http.MethodPost, Path: notificationsPath + "/" + id + "/dismiss"}
	_, err := c.call(ctx, "dismiss notification", call, nil)
	return err
}

// ClearNotifications removes all notifications.
func (c *Client) ClearNotifications(ctx context.Context) error {
	call := &internal.Call{Method: http.MethodPost, Path: notificationsPath + "/clear"}
	_, err := c.call(ctx, "clear notifications", call, nil)
	return err
}

func notificationParams(req *types.NotificationsRequest) Params {
	if req == nil {
		return Params{}
	}
	params := paginationParams(&req.Pagination)
	if len(req.Types) > 0 {
		params["types"] = req.Types
	}
	if len(req.ExcludeTypes) > 0 {
		params["exclude_types"] = req.ExcludeTypes
	}
	if req.AccountID != "" {
		params["account_id"] = req.AccountID
	}
	return params
}

func (c *Client) validateNotifications(req *types.NotificationsRequest) error {
	if req == nil {
		return nil
	}
	if err := c.validator.ValidatePagination(&req.Pagination, internal.MaxNotificationLimit); err != nil {
		return err
	}
	if req.AccountID != "" {
		return c.validator.ValidateID("account_id", req.AccountID)
	}
	return nil
}
