package mastodon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/validation"
)

// VerifyCredentials returns the account that owns the access token.
// It is the cheapest way to check that a token works.
func (c *Client) VerifyCredentials(ctx context.Context) (*types.Account, error) {
	var account types.Account
	if _, err := c.get(ctx, "verify credentials", "api/v1/accounts/verify_credentials", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Account retrieves an account by ID.
func (c *Client) Account(ctx context.Context, id string) (*types.Account, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	var account types.Account
	if _, err := c.get(ctx, "get account", "api/v1/accounts/"+id, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// LookupAccount resolves a handle such as "alice" or "alice@example.social"
// without a full search.
func (c *Client) LookupAccount(ctx context.Context, acct string) (*types.Account, error) {
	if !validation.IsValidAcct(acct) {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "acct", Message: fmt.Sprintf("%q is not a valid account handle", acct)}
	}
	var account types.Account
	if _, err := c.get(ctx, "lookup account", "api/v1/accounts/lookup", Params{"acct": acct}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// AccountStatuses lists statuses posted by an account, newest first.
func (c *Client) AccountStatuses(ctx context.Context, id string, p *types.Pagination) (*Page[*types.Status], error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	if err := c.validator.ValidatePagination(p, internal.MaxTimelineLimit); err != nil {
		return nil, err
	}
	return getPage[*types.Status](ctx, c, "get account statuses", "api/v1/accounts/"+id+"/statuses", paginationParams(p))
}

// Relationships returns the authenticated user's relationship to each of ids.
func (c *Client) Relationships(ctx context.Context, ids []string) ([]*types.Relationship, error) {
	if err := c.validator.ValidateIDs("id", ids); err != nil {
		return nil, err
	}
	var rels []*types.Relationship
	if _, err := c.get(ctx, "get relationships", "api/v1/accounts/relationships", Params{"id": ids}, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// Follow follows an account and returns the updated relationship.
func (c *Client) Follow(ctx context.Context, id string) (*types.Relationship, error) {
	return c.relationshipAction(ctx, "follow account", id, "follow")
}

// Unfollow unfollows an account and returns the updated relationship.
func (c *Client) Unfollow(ctx context.Context, id string) (*types.Relationship, error) {
	return c.relationshipAction(ctx, "unfollow account", id, "unfollow")
}

func (c *Client) relationshipAction(ctx context.Context, op, id, action string) (*types.Relationship, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	var rel types.Relationship
	call := &internal.Call{Method: http.MethodPost, Path: "api/v1/accounts/" + id + "/" + action}
	if _, err := c.call(ctx, op, call, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}
