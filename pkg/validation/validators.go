package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// Regular expressions for validating Mastodon data formats
var (
	// idRegex matches entity IDs. Mastodon uses numeric snowflakes; other
	// fediverse servers use alphanumeric flake IDs.
	idRegex = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

	// usernameRegex matches the local part of an account handle
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_.-]*[A-Za-z0-9_])?$`)

	// domainRegex matches a DNS host name, optionally with a port
	domainRegex = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,63}(:[0-9]{1,5})?$`)

	// hashtagRegex matches a hashtag name without the leading '#'
	hashtagRegex = regexp.MustCompile(`^[\p{L}\p{N}_\p{M}]+$`)

	// languageRegex matches an ISO 639-1 or 639-3 code
	languageRegex = regexp.MustCompile(`^[a-z]{2,3}$`)
)

// Visibility levels accepted when posting statuses.
var visibilities = map[string]bool{
	"public":   true,
	"unlisted": true,
	"private":  true,
	"direct":   true,
}

// IsValidID checks if a string is a plausible entity ID
func IsValidID(s string) bool {
	return idRegex.MatchString(s)
}

// IsValidAcct checks if a string is an account handle: "user", "user@domain"
// or "@user@domain".
func IsValidAcct(s string) bool {
	s = strings.TrimPrefix(s, "@")
	user, domain, remote := strings.Cut(s, "@")
	if !usernameRegex.MatchString(user) {
		return false
	}
	if remote {
		return domainRegex.MatchString(domain)
	}
	return true
}

// IsValidHashtag checks if a string is a hashtag name, with or without '#'
func IsValidHashtag(s string) bool {
	return hashtagRegex.MatchString(strings.TrimPrefix(s, "#"))
}

// IsValidVisibility checks if a string is a known status visibility
func IsValidVisibility(s string) bool {
	return visibilities[s]
}

// IsValidLanguage checks if a string is a lowercase ISO 639 language code
func IsValidLanguage(s string) bool {
	return languageRegex.MatchString(s)
}

// ValidateEntity validates any type that implements the Entity interface
func ValidateEntity(obj types.Entity) error {
	if obj == nil {
		return fmt.Errorf("entity is nil")
	}

	id := obj.GetID()
	if id == "" {
		return fmt.Errorf("ID is required")
	}
	if !IsValidID(id) {
		return fmt.Errorf("ID has invalid format: %s", id)
	}
	return nil
}

// ValidateStatus checks the structural invariants of a decoded status.
func ValidateStatus(s *types.Status) error {
	if s == nil {
		return fmt.Errorf("status is nil")
	}

	var errs []error
	if err := ValidateEntity(s); err != nil {
		errs = append(errs, err)
	}
	if s.Account == nil {
		errs = append(errs, fmt.Errorf("account is required"))
	} else if !IsValidAcct(s.Account.Acct) {
		errs = append(errs, fmt.Errorf("account has invalid acct: %q", s.Account.Acct))
	}
	if s.Visibility != "" && !IsValidVisibility(s.Visibility) {
		errs = append(errs, fmt.Errorf("unknown visibility %q", s.Visibility))
	}
	if s.Reblog != nil && s.Reblog.Reblog != nil {
		errs = append(errs, fmt.Errorf("reblog of a reblog"))
	}
	if parent := s.ParentID(); parent != "" && parent == s.ID {
		errs = append(errs, fmt.Errorf("status replies to itself"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("status validation failed: %w", errors.Join(errs...))
	}
	return nil
}
