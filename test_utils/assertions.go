package test_utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/validation"
)

func AssertValidID(id string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if !validation.IsValidID(id) {
		return fmt.Errorf("id has invalid format: %s", id)
	}
	return nil
}

func AssertValidAcct(acct string) error {
	if !validation.IsValidAcct(acct) {
		return fmt.Errorf("acct has invalid format: %q", acct)
	}
	return nil
}

// AssertValidStatus checks a decoded status, including the status it reblogs.
func AssertValidStatus(s *types.Status) error {
	if err := validation.ValidateStatus(s); err != nil {
		return err
	}
	if s.Reblog != nil {
		if err := validation.ValidateStatus(s.Reblog); err != nil {
			return fmt.Errorf("reblog: %w", err)
		}
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("status %s has no creation time", s.ID)
	}
	return nil
}

// AssertStatusListValid checks every status and that IDs are unique.
func AssertStatusListValid(statuses []*types.Status) error {
	seen := make(map[string]bool, len(statuses))
	for i, s := range statuses {
		if err := AssertValidStatus(s); err != nil {
			return fmt.Errorf("status %d: %w", i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("status %d: duplicate id %s", i, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// AssertNewestFirst checks that a timeline page is ordered by descending
// creation time.
func AssertNewestFirst(statuses []*types.Status) error {
	for i := 1; i < len(statuses); i++ {
		if statuses[i].CreatedAt.After(statuses[i-1].CreatedAt) {
			return fmt.Errorf("status %d (%s) is newer than status %d (%s)",
				i, statuses[i].CreatedAt.Format(time.RFC3339), i-1, statuses[i-1].CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// ThreadView is the part of a thread tree the assertions need.
type ThreadView interface {
	Roots() []*types.Status
	Replies(id string) []*types.Status
	Count() int
	Walk(func(*types.Status, int))
}

// AssertThreadConsistent checks that every status is visited exactly once
// and that replies sit one level below their parent.
func AssertThreadConsistent(tree ThreadView) error {
	depths := make(map[string]int, tree.Count())
	var err error
	tree.Walk(func(s *types.Status, depth int) {
		if err != nil {
			return
		}
		if _, dup := depths[s.ID]; dup {
			err = fmt.Errorf("status %s visited twice", s.ID)
			return
		}
		depths[s.ID] = depth
		if s.ParentID() == s.ID {
			return
		}
		if parentDepth, ok := depths[s.ParentID()]; ok && depth != parentDepth+1 {
			err = fmt.Errorf("status %s at depth %d, parent %s at depth %d", s.ID, depth, s.ParentID(), parentDepth)
		}
	})
	if err != nil {
		return err
	}
	if len(depths) != tree.Count() {
		return fmt.Errorf("walk visited %d statuses, tree has %d", len(depths), tree.Count())
	}
	for _, root := range tree.Roots() {
		if depths[root.ID] != 0 {
			return fmt.Errorf("root %s at depth %d", root.ID, depths[root.ID])
		}
	}
	return nil
}

func AssertRateLimit(rl types.RateLimitStatus, maxSleep time.Duration, now time.Time) error {
	if rl.Limit < 0 {
		return fmt.Errorf("negative limit: %d", rl.Limit)
	}
	if rl.Remaining < 0 {
		return fmt.Errorf("negative remaining: %d", rl.Remaining)
	}
	if rl.Remaining > rl.Limit {
		return fmt.Errorf("remaining %d exceeds limit %d", rl.Remaining, rl.Limit)
	}
	if rl.ResetAt.Sub(now) > maxSleep+time.Hour {
		return fmt.Errorf("reset %v implausibly far in the future", rl.ResetAt)
	}
	return nil
}

// AssertErrorType checks that err wraps an error of the named type from
// pkg/errors, e.g. "NetworkError".
func AssertErrorType(err error, expectedType string) error {
	if err == nil {
		return fmt.Errorf("expected %s, got nil", expectedType)
	}
	targets := map[string]any{
		"ConfigError":          new(*pkgerrs.ConfigError),
		"AuthError":            new(*pkgerrs.AuthError),
		"NetworkError":         new(*pkgerrs.NetworkError),
		"NotFoundError":        new(*pkgerrs.NotFoundError),
		"APIError":             new(*pkgerrs.APIError),
		"RateLimitError":       new(*pkgerrs.RateLimitError),
		"IllegalArgumentError": new(*pkgerrs.IllegalArgumentError),
		"MalformedEventError":  new(*pkgerrs.MalformedEventError),
	}
	target, ok := targets[expectedType]
	if !ok {
		return fmt.Errorf("unknown error type %s", expectedType)
	}
	if !errors.As(err, target) {
		return fmt.Errorf("expected %s, got %T: %v", expectedType, err, err)
	}
	return nil
}

func AssertErrorMessage(err error, expectedSubstring string) error {
	if err == nil {
		return fmt.Errorf("expected error containing %q, got nil", expectedSubstring)
	}
	if !strings.Contains(err.Error(), expectedSubstring) {
		return fmt.Errorf("error %q does not contain %q", err.Error(), expectedSubstring)
	}
	return nil
}

func AssertSliceLength(slice interface{}, expectedLength int) error {
	v := reflect.ValueOf(slice)
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("expected slice, got %s", v.Kind())
	}
	if v.Len() != expectedLength {
		return fmt.Errorf("expected length %d, got %d", expectedLength, v.Len())
	}
	return nil
}
