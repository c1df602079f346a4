package internal

import (
	"fmt"
	"strings"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/validation"
)

const (
	// Pagination constraints
	MaxTimelineLimit     = 40
	MaxNotificationLimit = 80

	// Status constraints
	maxMediaAttachments = 4
	minPollOptions      = 2
	minPollDuration     = 5 * time.Minute
	minScheduleLead     = 5 * time.Minute

	// Bulk lookups such as /api/v1/accounts/relationships
	maxBulkIDs = 40

	// User agent constraints
	maxUserAgentLength = 256
)

// Validator checks call parameters before anything is sent. Failures are
// reported as IllegalArgumentError.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateID checks a single entity ID.
func (v *Validator) ValidateID(argument, id string) error {
	if id == "" {
		return &pkgerrs.IllegalArgumentError{Argument: argument, Message: "id cannot be empty"}
	}
	if !validation.IsValidID(id) {
		return &pkgerrs.IllegalArgumentError{Argument: argument, Message: fmt.Sprintf("%q is not a valid id", id)}
	}
	return nil
}

// ValidateIDs checks a bulk lookup list.
func (v *Validator) ValidateIDs(argument string, ids []string) error {
	if len(ids) == 0 {
		return &pkgerrs.IllegalArgumentError{Argument: argument, Message: "at least one id is required"}
	}
	if len(ids) > maxBulkIDs {
		return &pkgerrs.IllegalArgumentError{Argument: argument, Message: fmt.Sprintf("cannot request more than %d ids at once (got %d)", maxBulkIDs, len(ids))}
	}
	for i, id := range ids {
		if err := v.ValidateID(fmt.Sprintf("%s[%d]", argument, i), id); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePagination checks cursor IDs and the page size against maxLimit.
func (v *Validator) ValidatePagination(p *types.Pagination, maxLimit int) error {
	if p == nil {
		return nil
	}
	if p.Limit < 0 {
		return &pkgerrs.IllegalArgumentError{Argument: "limit", Message: "limit cannot be negative"}
	}
	if p.Limit > maxLimit {
		return &pkgerrs.IllegalArgumentError{Argument: "limit", Message: fmt.Sprintf("limit cannot exceed %d", maxLimit)}
	}
	for name, id := range map[string]string{"max_id": p.MaxID, "min_id": p.MinID, "since_id": p.SinceID} {
		if id != "" && !validation.IsValidID(id) {
			return &pkgerrs.IllegalArgumentError{Argument: name, Message: fmt.Sprintf("%q is not a valid id", id)}
		}
	}
	return nil
}

// ValidateStatusRequest checks a new status before it is posted.
func (v *Validator) ValidateStatusRequest(req *types.StatusRequest, now time.Time) error {
	if req == nil {
		return &pkgerrs.IllegalArgumentError{Argument: "status", Message: "request cannot be nil"}
	}
	if strings.TrimSpace(req.Status) == "" && len(req.MediaIDs) == 0 {
		return &pkgerrs.IllegalArgumentError{Argument: "status", Message: "status text is required unless media is attached"}
	}
	if len(req.MediaIDs) > maxMediaAttachments {
		return &pkgerrs.IllegalArgumentError{Argument: "media_ids", Message: fmt.Sprintf("at most %d media attachments are allowed", maxMediaAttachments)}
	}
	for i, id := range req.MediaIDs {
		if err := v.ValidateID(fmt.Sprintf("media_ids[%d]", i), id); err != nil {
			return err
		}
	}
	if req.InReplyToID != "" {
		if err := v.ValidateID("in_reply_to_id", req.InReplyToID); err != nil {
			return err
		}
	}
	if req.Visibility != "" && !validation.IsValidVisibility(req.Visibility) {
		return &pkgerrs.IllegalArgumentError{Argument: "visibility", Message: fmt.Sprintf("%q is not one of public, unlisted, private or direct", req.Visibility)}
	}
	if req.Language != "" && !validation.IsValidLanguage(req.Language) {
		return &pkgerrs.IllegalArgumentError{Argument: "language", Message: fmt.Sprintf("%q is not an ISO 639 language code", req.Language)}
	}
	if req.ScheduledAt != nil && !req.ScheduledAt.After(now.Add(minScheduleLead)) {
		return &pkgerrs.IllegalArgumentError{Argument: "scheduled_at", Message: "scheduled time must be at least 5 minutes in the future"}
	}
	if req.Poll != nil {
		if len(req.MediaIDs) > 0 {
			return &pkgerrs.IllegalArgumentError{Argument: "poll", Message: "a status cannot carry both media and a poll"}
		}
		if err := v.validatePoll(req.Poll); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validatePoll(p *types.PollRequest) error {
	if len(p.Options) < minPollOptions {
		return &pkgerrs.IllegalArgumentError{Argument: "poll[options]", Message: fmt.Sprintf("a poll needs at least %d options", minPollOptions)}
	}
	seen := make(map[string]bool, len(p.Options))
	for _, opt := range p.Options {
		if strings.TrimSpace(opt) == "" {
			return &pkgerrs.IllegalArgumentError{Argument: "poll[options]", Message: "poll options cannot be empty"}
		}
		if seen[opt] {
			return &pkgerrs.IllegalArgumentError{Argument: "poll[options]", Message: fmt.Sprintf("duplicate poll option %q", opt)}
		}
		seen[opt] = true
	}
	if p.ExpiresIn < minPollDuration {
		return &pkgerrs.IllegalArgumentError{Argument: "poll[expires_in]", Message: "poll must run for at least 5 minutes"}
	}
	return nil
}

// ValidateMediaRequest checks an upload before it is sent.
func (v *Validator) ValidateMediaRequest(req *types.MediaRequest) error {
	if req == nil || len(req.Data) == 0 {
		return &pkgerrs.IllegalArgumentError{Argument: "file", Message: "media data cannot be empty"}
	}
	if req.Focus != nil {
		for _, c := range req.Focus {
			if c < -1 || c > 1 {
				return &pkgerrs.IllegalArgumentError{Argument: "focus", Message: "focal point coordinates must lie within [-1, 1]"}
			}
		}
	}
	return nil
}

// ValidateHashtag checks a hashtag name, with or without its leading '#'.
func (v *Validator) ValidateHashtag(tag string) (string, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if !validation.IsValidHashtag(tag) {
		return "", &pkgerrs.IllegalArgumentError{Argument: "tag", Message: fmt.Sprintf("%q is not a valid hashtag", tag)}
	}
	return tag, nil
}

// ValidateUserAgent validates the User-Agent string to prevent header injection attacks.
func (v *Validator) ValidateUserAgent(ua string) error {
	if len(ua) == 0 {
		return &pkgerrs.ConfigError{Field: "UserAgent", Message: "user agent cannot be empty"}
	}
	if strings.ContainsAny(ua, "\r\n") {
		return &pkgerrs.ConfigError{Field: "UserAgent", Message: "user agent cannot contain newline characters"}
	}
	if len(ua) > maxUserAgentLength {
		return &pkgerrs.ConfigError{Field: "UserAgent", Message: fmt.Sprintf("user agent too long (max %d characters)", maxUserAgentLength)}
	}
	return nil
}
