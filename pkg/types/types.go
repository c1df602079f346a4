package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entity defines the common behavior for Mastodon API objects that carry an ID,
// such as statuses, accounts and notifications.
type Entity interface {
	GetID() string
}

// EntityID is embedded into every identified entity.
type EntityID struct {
	ID string `json:"id"`
}

// GetID returns the entity's ID.
func (e EntityID) GetID() string {
	return e.ID
}

// FlexibleID decodes an identifier that may arrive as a JSON string or a bare
// JSON number. Streaming "delete" events send the status ID as a number.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = FlexibleID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("unrecognized type for id: %s", s)
	}
	*f = FlexibleID(num.String())
	return nil
}

// String returns the identifier text.
func (f FlexibleID) String() string {
	return string(f)
}

// Field is a profile metadata field.
type Field struct {
	Name       string     `json:"name"`
	Value      string     `json:"value"`
	VerifiedAt *time.Time `json:"verified_at"`
}

// Emoji is a custom emoji.
type Emoji struct {
	Shortcode       string `json:"shortcode"`
	URL             string `json:"url"`
	StaticURL       string `json:"static_url"`
	VisibleInPicker bool   `json:"visible_in_picker"`
	Category        string `json:"category,omitempty"`
}

// Account represents a user of Mastodon and their associated profile.
type Account struct {
	EntityID
	Username       string    `json:"username"`
	Acct           string    `json:"acct"`
	DisplayName    string    `json:"display_name"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
	Discoverable   *bool     `json:"discoverable"`
	Group          bool      `json:"group"`
	CreatedAt      time.Time `json:"created_at"`
	Note           string    `json:"note"`
	URL            string    `json:"url"`
	Avatar         string    `json:"avatar"`
	AvatarStatic   string    `json:"avatar_static"`
	Header         string    `json:"header"`
	HeaderStatic   string    `json:"header_static"`
	FollowersCount int64     `json:"followers_count"`
	FollowingCount int64     `json:"following_count"`
	StatusesCount  int64     `json:"statuses_count"`
	LastStatusAt   *string   `json:"last_status_at"`
	Emojis         []Emoji   `json:"emojis"`
	Fields         []Field   `json:"fields"`
	Moved          *Account  `json:"moved,omitempty"`
}

// Relationship describes the authenticated user's relationship to an account.
type Relationship struct {
	EntityID
	Following           bool     `json:"following"`
	ShowingReblogs      bool     `json:"showing_reblogs"`
	Notifying           bool     `json:"notifying"`
	Languages           []string `json:"languages"`
	FollowedBy          bool     `json:"followed_by"`
	Blocking            bool     `json:"blocking"`
	BlockedBy           bool     `json:"blocked_by"`
	Muting              bool     `json:"muting"`
	MutingNotifications bool     `json:"muting_notifications"`
	Requested           bool     `json:"requested"`
	DomainBlocking      bool     `json:"domain_blocking"`
	Endorsed            bool     `json:"endorsed"`
	Note                string   `json:"note"`
}

// MediaAttachment is a file attached to a status.
type MediaAttachment struct {
	EntityID
	Type        string          `json:"type"`
	URL         *string         `json:"url"`
	PreviewURL  string          `json:"preview_url"`
	RemoteURL   *string         `json:"remote_url"`
	Description *string         `json:"description"`
	Blurhash    *string         `json:"blurhash"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// Mention is an account mentioned in a status.
type Mention struct {
	EntityID
	Username string `json:"username"`
	URL      string `json:"url"`
	Acct     string `json:"acct"`
}

// Tag is a hashtag used within a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Application is the client that posted a status, or the result of app registration.
type Application struct {
	Name         string  `json:"name"`
	Website      *string `json:"website"`
	ClientID     string  `json:"client_id,omitempty"`
	ClientSecret string  `json:"client_secret,omitempty"`
	VapidKey     string  `json:"vapid_key,omitempty"`
}

// PollOption is one choice in a poll.
type PollOption struct {
	Title      string `json:"title"`
	VotesCount *int64 `json:"votes_count"`
}

// Poll attached to a status.
type Poll struct {
	EntityID
	ExpiresAt   *time.Time   `json:"expires_at"`
	Expired     bool         `json:"expired"`
	Multiple    bool         `json:"multiple"`
	VotesCount  int64        `json:"votes_count"`
	VotersCount *int64       `json:"voters_count"`
	Options     []PollOption `json:"options"`
	Voted       *bool        `json:"voted,omitempty"`
	OwnVotes    []int        `json:"own_votes,omitempty"`
}

// Status is a post published by an account.
type Status struct {
	EntityID
	URI                string            `json:"uri"`
	URL                *string           `json:"url"`
	CreatedAt          time.Time         `json:"created_at"`
	EditedAt           *time.Time        `json:"edited_at"`
	Account            *Account          `json:"account"`
	Content            string            `json:"content"`
	Visibility         string            `json:"visibility"`
	Sensitive          bool              `json:"sensitive"`
	SpoilerText        string            `json:"spoiler_text"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Application        *Application      `json:"application,omitempty"`
	Mentions           []Mention         `json:"mentions"`
	Tags               []Tag             `json:"tags"`
	Emojis             []Emoji           `json:"emojis"`
	ReblogsCount       int64             `json:"reblogs_count"`
	FavouritesCount    int64             `json:"favourites_count"`
	RepliesCount       int64             `json:"replies_count"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	Reblog             *Status           `json:"reblog"`
	Poll               *Poll             `json:"poll"`
	Language           *string           `json:"language"`
	Text               *string           `json:"text,omitempty"`
	Favourited         *bool             `json:"favourited,omitempty"`
	Reblogged          *bool             `json:"reblogged,omitempty"`
	Muted              *bool             `json:"muted,omitempty"`
	Bookmarked         *bool             `json:"bookmarked,omitempty"`
	Pinned             *bool             `json:"pinned,omitempty"`
}

// ParentID returns the ID of the status this one replies to, or "".
func (s *Status) ParentID() string {
	if s == nil || s.InReplyToID == nil {
		return ""
	}
	return *s.InReplyToID
}

// ScheduledStatus is a status queued for later publication.
type ScheduledStatus struct {
	EntityID
	ScheduledAt      time.Time         `json:"scheduled_at"`
	Params           json.RawMessage   `json:"params"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
}

// Context holds the ancestors and descendants of a status.
type Context struct {
	Ancestors   []*Status `json:"ancestors"`
	Descendants []*Status `json:"descendants"`
}

// Notification types sent by the server.
const (
	NotificationMention       = "mention"
	NotificationStatus        = "status"
	NotificationReblog        = "reblog"
	NotificationFollow        = "follow"
	NotificationFollowRequest = "follow_request"
	NotificationFavourite     = "favourite"
	NotificationPoll          = "poll"
	NotificationUpdate        = "update"
)

// Notification received by the authenticated account.
type Notification struct {
	EntityID
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   *Account  `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

// Conversation is a direct-message thread.
type Conversation struct {
	EntityID
	Unread     bool       `json:"unread"`
	Accounts   []*Account `json:"accounts"`
	LastStatus *Status    `json:"last_status"`
}

// AnnouncementReaction is an emoji reaction to an announcement.
type AnnouncementReaction struct {
	Name           string `json:"name"`
	Count          int64  `json:"count"`
	AnnouncementID string `json:"announcement_id,omitempty"`
	Me             *bool  `json:"me,omitempty"`
	URL            string `json:"url,omitempty"`
	StaticURL      string `json:"static_url,omitempty"`
}

// Announcement is an instance-wide announcement set by administrators.
type Announcement struct {
	EntityID
	Content     string                 `json:"content"`
	StartsAt    *time.Time             `json:"starts_at"`
	EndsAt      *time.Time             `json:"ends_at"`
	AllDay      bool                   `json:"all_day"`
	PublishedAt time.Time              `json:"published_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Read        *bool                  `json:"read,omitempty"`
	Mentions    []Mention              `json:"mentions"`
	Tags        []Tag                  `json:"tags"`
	Emojis      []Emoji                `json:"emojis"`
	Reactions   []AnnouncementReaction `json:"reactions"`
}

// EncryptedMessage is delivered over the streaming API to E2EE-capable devices.
type EncryptedMessage struct {
	EntityID
	AccountID       string `json:"account_id"`
	DeviceID        string `json:"device_id"`
	Type            int    `json:"type"`
	Body            string `json:"body"`
	Digest          string `json:"digest"`
	MessageFranking string `json:"message_franking"`
}

// Token is the result of an OAuth token exchange.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
}

// Scopes returns the granted scopes.
func (t *Token) Scopes() []string {
	if t == nil {
		return nil
	}
	return strings.Fields(t.Scope)
}

// InstanceURLs lists auxiliary endpoints advertised by an instance.
type InstanceURLs struct {
	StreamingAPI string `json:"streaming_api"`
}

// Instance describes the server (v1 instance endpoint).
type Instance struct {
	URI         string       `json:"uri"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	URLs        InstanceURLs `json:"urls"`
}

// Pagination carries Mastodon's ID-based cursor parameters. At most one of
// MaxID, MinID and SinceID is normally set.
type Pagination struct {
	// MaxID returns results older than this ID.
	MaxID string
	// MinID returns results immediately newer than this ID.
	MinID string
	// SinceID returns the newest results newer than this ID.
	SinceID string
	// Limit caps the page size. The server default is 20; most endpoints allow 40.
	Limit int
}

// TimelineRequest describes a request for a timeline page.
type TimelineRequest struct {
	Pagination
	// Local restricts the public or hashtag timeline to local statuses.
	Local bool
	// Remote restricts the public timeline to remote statuses.
	Remote bool
	// OnlyMedia restricts results to statuses with media attachments.
	OnlyMedia bool
}

// NotificationsRequest describes a request for the notification list.
type NotificationsRequest struct {
	Pagination
	// Types limits results to these notification types.
	Types []string
	// ExcludeTypes removes these notification types.
	ExcludeTypes []string
	// AccountID limits results to notifications from one account.
	AccountID string
}

// StatusRequest describes a new status.
type StatusRequest struct {
	Status      string
	InReplyToID string
	MediaIDs    []string
	Sensitive   bool
	SpoilerText string
	Visibility  string
	Language    string
	ScheduledAt *time.Time
	Poll        *PollRequest
	// IdempotencyKey deduplicates retried posts. A random key is generated when empty.
	IdempotencyKey string
}

// PollRequest describes a poll attached to a new status.
type PollRequest struct {
	Options    []string
	ExpiresIn  time.Duration
	Multiple   bool
	HideTotals bool
}

// MediaRequest describes a media upload.
type MediaRequest struct {
	// FileName is used for the multipart part and for MIME detection.
	FileName string
	// MimeType overrides detection from FileName.
	MimeType string
	// Data holds the file contents.
	Data []byte
	// Description is the alt text.
	Description string
	// Focus is the focal point in the range [-1, 1] on each axis.
	Focus *[2]float64
}

// RateLimitStatus is a snapshot of the client's rate-limit bookkeeping.
type RateLimitStatus struct {
	Method     string
	Limit      int
	Remaining  int
	ResetAt    time.Time
	LastCallAt time.Time
	PaceFactor float64
}
