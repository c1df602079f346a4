package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	mastodon "github.com/jamesprial/go-mastodon-api-wrapper"
)

// Options are the global flags shared by every command.
type Options struct {
	Profile        string `long:"profile" env:"TOOT_PROFILE" description:"YAML profile with defaults for the options below"`
	BaseURL        string `long:"base-url" env:"MASTODON_BASE_URL" description:"Instance URL (e.g. https://mastodon.social)"`
	AccessToken    string `long:"token" env:"MASTODON_ACCESS_TOKEN" description:"Access token"`
	TokenFile      string `long:"token-file" env:"MASTODON_TOKEN_FILE" description:"File holding the access token"`
	ClientFile     string `long:"client-file" env:"MASTODON_CLIENT_FILE" description:"File holding the client id and secret"`
	RateLimit      string `long:"rate-limit" env:"MASTODON_RATE_LIMIT" choice:"throw" choice:"wait" choice:"pace" description:"Rate limit strategy (default pace)"`
	PaceFactor     float64 `long:"pace-factor" env:"MASTODON_PACE_FACTOR" description:"Pace below the theoretical maximum rate by this factor"`
	StreamingURL   string `long:"streaming-url" env:"MASTODON_STREAMING_URL" description:"Override the advertised streaming API URL"`
	LogFile        string `long:"log-file" env:"TOOT_LOG_FILE" description:"Write logs to this file, rotated by size"`
	Debug          bool   `long:"debug" env:"TOOT_DEBUG" description:"Enable verbose debug output"`
	MetricsAddress string `long:"metrics-addr" env:"TOOT_METRICS_ADDR" description:"Serve Prometheus metrics on this address while streaming"`

	Register      RegisterCommand      `command:"register" description:"Register an application and save its credentials"`
	Login         LoginCommand         `command:"login" description:"Log in with a password and save the access token"`
	Post          PostCommand          `command:"post" description:"Publish a status"`
	Timeline      TimelineCommand      `command:"timeline" description:"Show a timeline"`
	Notifications NotificationsCommand `command:"notifications" description:"Show notifications"`
	Stream        StreamCommand        `command:"stream" description:"Print events from a stream until interrupted"`
	RateLimits    RateLimitCommand     `command:"ratelimit" description:"Show the current rate limit"`
	Health        HealthCommand        `command:"health" description:"Check the streaming API health endpoint"`
}

type RegisterCommand struct {
	Name    string   `long:"name" default:"toot" description:"Application name"`
	Website string   `long:"website" description:"Application website"`
	Scopes  []string `long:"scope" description:"Requested scope (repeatable)"`
}

type LoginCommand struct {
	Username string   `long:"username" env:"MASTODON_USERNAME" required:"true" description:"Account e-mail"`
	Password string   `long:"password" env:"MASTODON_PASSWORD" required:"true" description:"Account password"`
	Scopes   []string `long:"scope" description:"Requested scope (repeatable)"`
}

type PostCommand struct {
	Visibility  string   `long:"visibility" choice:"public" choice:"unlisted" choice:"private" choice:"direct" description:"Status visibility"`
	SpoilerText string   `long:"spoiler" description:"Content warning"`
	Sensitive   bool     `long:"sensitive" description:"Mark attached media as sensitive"`
	Language    string   `long:"language" description:"ISO 639 language code"`
	ReplyTo     string   `long:"reply-to" description:"ID of the status to reply to"`
	Media       []string `long:"media" description:"File to attach (repeatable)"`
	Description string   `long:"alt" description:"Alt text for the attached media"`
	In          string   `long:"in" description:"Schedule the status after this duration (e.g. 1h)"`

	Args struct {
		Text []string `positional-arg-name:"text" required:"1"`
	} `positional-args:"yes"`
}

type TimelineCommand struct {
	Kind  string `long:"kind" default:"home" choice:"home" choice:"public" choice:"local" choice:"tag" choice:"list" description:"Timeline to show"`
	Tag   string `long:"tag" description:"Hashtag for --kind tag"`
	List  string `long:"list" description:"List ID for --kind list"`
	Limit int    `long:"limit" default:"20" description:"Number of statuses to show"`
}

type NotificationsCommand struct {
	Limit int      `long:"limit" default:"20" description:"Number of notifications to show"`
	Types []string `long:"type" description:"Only show this notification type (repeatable)"`
}

type StreamCommand struct {
	Stream    string `long:"stream" default:"user" description:"Stream name, e.g. user, public:local, hashtag, list"`
	Tag       string `long:"tag" description:"Hashtag for hashtag streams"`
	List      string `long:"list" description:"List ID for the list stream"`
	WebSocket bool   `long:"websocket" description:"Use the websocket transport"`
	Reconnect bool   `long:"reconnect" description:"Reconnect with backoff when the connection drops"`
}

type RateLimitCommand struct{}

type HealthCommand struct{}

// Profile holds defaults loaded from a YAML file.
type Profile struct {
	BaseURL      string  `yaml:"base_url"`
	TokenFile    string  `yaml:"token_file"`
	ClientFile   string  `yaml:"client_file"`
	RateLimit    string  `yaml:"rate_limit"`
	PaceFactor   float64 `yaml:"pace_factor"`
	StreamingURL string  `yaml:"streaming_url"`
	LogFile      string  `yaml:"log_file"`
}

// ParseOptions loads .env, parses args and applies the profile. The returned
// string names the selected command.
func ParseOptions(args []string) (*Options, string, error) {
	_ = godotenv.Load()

	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, "", err
	}
	if parser.Active == nil {
		return nil, "", errors.New("no command given")
	}

	if opts.Profile != "" {
		profile, err := LoadProfile(opts.Profile)
		if err != nil {
			return nil, "", err
		}
		opts.applyProfile(profile)
	}
	return opts, parser.Active.Name, nil
}

// LoadProfile reads a YAML profile. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	p.TokenFile = resolveRelative(dir, p.TokenFile)
	p.ClientFile = resolveRelative(dir, p.ClientFile)
	p.LogFile = resolveRelative(dir, p.LogFile)
	return p, nil
}

// SaveProfile writes p to path with mode 0600.
func SaveProfile(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveRelative(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// applyProfile fills options that were not set on the command line or in
// the environment.
func (o *Options) applyProfile(p *Profile) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&o.BaseURL, p.BaseURL)
	fill(&o.TokenFile, p.TokenFile)
	fill(&o.ClientFile, p.ClientFile)
	fill(&o.RateLimit, p.RateLimit)
	fill(&o.StreamingURL, p.StreamingURL)
	fill(&o.LogFile, p.LogFile)
	if o.PaceFactor == 0 {
		o.PaceFactor = p.PaceFactor
	}
}

// ClientConfig builds the library configuration from the options.
func (o *Options) ClientConfig(logger *slog.Logger) *mastodon.Config {
	return &mastodon.Config{
		BaseURL:         strings.TrimSpace(o.BaseURL),
		AccessToken:     o.AccessToken,
		AccessTokenFile: o.TokenFile,
		ClientCredFile:  o.ClientFile,
		RateLimitMethod: o.RateLimit,
		PaceFactor:      o.PaceFactor,
		StreamingURL:    o.StreamingURL,
		UserAgent:       "toot/" + version,
		Logger:          logger,
	}
}

// NewLogger logs to stderr, or to a size-rotated file when LogFile is set.
// The returned closer flushes the file.
func (o *Options) NewLogger(stderr io.Writer) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if o.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if o.LogFile == "" {
		return slog.New(slog.NewTextHandler(stderr, handlerOpts)), io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(rotator, handlerOpts)), rotator
}
