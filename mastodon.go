package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/streaming"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const (
	// DefaultUserAgent is the default user agent string
	DefaultUserAgent = "go-mastodon-api-wrapper/0.1"
	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
	// DefaultPaceFactor is used when Config.PaceFactor is zero.
	DefaultPaceFactor = internal.DefaultPaceFactor
)

// Rate limit methods accepted by Config.RateLimitMethod.
const (
	// RateLimitThrow returns a RateLimitError as soon as the server throttles a call.
	RateLimitThrow = string(internal.RateLimitThrow)
	// RateLimitWait sleeps until the window resets when the quota is used up.
	RateLimitWait = string(internal.RateLimitWait)
	// RateLimitPace spreads calls evenly over the window.
	RateLimitPace = string(internal.RateLimitPace)
)

// Params holds call parameters. Slices are sent as repeated "name[]" keys
// and nil values are dropped.
type Params = internal.Params

// File is a multipart file attachment.
type File = internal.File

// Metrics receives request and stream telemetry. *metrics.Collector
// implements it.
type Metrics interface {
	internal.Recorder
	streaming.Observer
}

// Config holds the configuration for the Mastodon client.
//
// Either provide an AccessToken (or AccessTokenFile), or ClientID,
// ClientSecret, Username and Password so that Connect can exchange them for
// a token. Without any credentials only public endpoints work.
//
// Example:
//
//	config := &Config{
//		BaseURL:         "https://mastodon.social",
//		AccessTokenFile: "usercred.secret",
//		RateLimitMethod: RateLimitPace,
//	}
type Config struct {
	// BaseURL is the instance URL, e.g. "https://mastodon.social".
	// It may also come from the third line of ClientCredFile or the second
	// line of AccessTokenFile.
	BaseURL string

	// ClientID and ClientSecret identify a registered application.
	ClientID     string
	ClientSecret string
	// ClientCredFile holds the client id and secret, one per line.
	ClientCredFile string

	// AccessToken is a user or application bearer token.
	AccessToken string
	// AccessTokenFile holds the token on its first line. After a password
	// login the new token is written back to this file.
	AccessTokenFile string

	// Username and Password enable the password grant during Connect.
	Username string
	Password string
	// Scopes requested during login. Defaults to read, write, follow and push.
	Scopes []string

	// RateLimitMethod is "throw", "wait" or "pace" (default). Wait and pace
	// are best-effort when one Client is shared between goroutines: two
	// goroutines may compute the same pacing sleep.
	RateLimitMethod string
	// PaceFactor > 1 keeps pacing below the theoretical maximum rate.
	PaceFactor float64
	// RequestsPerMinute enables an additional client-side token bucket.
	RequestsPerMinute float64
	// Burst is the token bucket size.
	Burst int

	// UserAgent identifies the application. Defaults to DefaultUserAgent.
	UserAgent string

	// Timeout applies to the default HTTP client; ignored if HTTPClient is set.
	Timeout time.Duration
	// HTTPClient to use for requests. Streaming copies it without a timeout.
	HTTPClient *http.Client

	// Logger for structured diagnostics. Nil discards logs unless Debug is set.
	Logger *slog.Logger
	// Debug logs every call to stderr when no Logger is given.
	Debug bool
	// Metrics is optional.
	Metrics Metrics

	// StreamingURL overrides the streaming API root advertised by the instance.
	StreamingURL string
	// StreamReconnect makes stream helpers reconnect with exponential backoff.
	StreamReconnect bool
}

// Client is the main Mastodon API client.
// All API methods connect lazily; call Connect to surface authentication
// failures early.
type Client struct {
	engine    *internal.Client
	config    *Config
	parser    *internal.Parser
	validator *internal.Validator
	conn      *internal.ConnectionManager
	logger    *slog.Logger

	now               func() time.Time
	newIdempotencyKey func() string

	streaming streamingEndpoint
}

// NewClient validates config, loads credential files and prepares a client.
// It does not contact the server; see Connect.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, &pkgerrs.ConfigError{Message: "config cannot be nil"}
	}
	cfg := *config

	if err := loadCredentialFiles(&cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, &pkgerrs.ConfigError{Field: "BaseURL", Message: "instance URL is required"}
	}
	if cfg.Username != "" && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return nil, &pkgerrs.ConfigError{Field: "ClientID", Message: "password login requires ClientID and ClientSecret"}
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	validator := internal.NewValidator()
	if err := validator.ValidateUserAgent(cfg.UserAgent); err != nil {
		return nil, err
	}

	method, err := internal.ParseRateLimitMethod(cfg.RateLimitMethod)
	if err != nil {
		return nil, err
	}
	if cfg.PaceFactor < 0 {
		return nil, &pkgerrs.ConfigError{Field: "PaceFactor", Message: "pace factor cannot be negative"}
	}

	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil && cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine, err := internal.NewClient(cfg.HTTPClient, cfg.AccessToken, cfg.BaseURL, cfg.UserAgent, &internal.RateLimitConfig{
		Method:            method,
		PaceFactor:        cfg.PaceFactor,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics != nil {
		engine.SetRecorder(cfg.Metrics)
	}

	return &Client{
		engine:            engine,
		config:            &cfg,
		parser:            internal.NewParser(engine.BaseURL),
		validator:         validator,
		conn:              internal.NewConnectionManager(),
		logger:            logger,
		now:               time.Now,
		newIdempotencyKey: uuid.NewString,
	}, nil
}

// loadCredentialFiles fills empty credential fields from the configured files.
func loadCredentialFiles(cfg *Config) error {
	if cfg.ClientCredFile != "" && cfg.ClientID == "" {
		creds, err := internal.ReadClientCredentials(cfg.ClientCredFile)
		if err != nil {
			return err
		}
		cfg.ClientID, cfg.ClientSecret = creds.ClientID, creds.ClientSecret
		if cfg.BaseURL == "" {
			cfg.BaseURL = creds.BaseURL
		}
	}

	if cfg.AccessTokenFile != "" && cfg.AccessToken == "" {
		token, baseURL, err := internal.ReadAccessToken(cfg.AccessTokenFile)
		switch {
		case err == nil:
			cfg.AccessToken = token
			if cfg.BaseURL == "" {
				cfg.BaseURL = baseURL
			}
		case errors.Is(err, fs.ErrNotExist) && cfg.Username != "":
			// Written after the first login.
		default:
			return err
		}
	}
	return nil
}

// Connect obtains an access token when the client was configured with a
// username and password. It is safe to call repeatedly and from several
// goroutines; a failed attempt may be retried.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Initialize(ctx, c.initialize)
}

func (c *Client) initialize(ctx context.Context) error {
	if c.engine.Token() != "" || c.config.Username == "" {
		return nil
	}

	auth, err := internal.NewAuthenticator(c.engine, c.config.Username, c.config.Password,
		c.config.ClientID, c.config.ClientSecret, c.config.Scopes, "")
	if err != nil {
		return err
	}
	token, err := auth.GetToken(ctx)
	if err != nil {
		return err
	}
	c.engine.SetToken(token.AccessToken)
	c.logger.Debug("logged in", "user", c.config.Username, "scope", token.Scope)

	if c.config.AccessTokenFile != "" {
		if err := internal.WriteAccessToken(c.config.AccessTokenFile, token.AccessToken, c.engine.BaseURL.String()); err != nil {
			return &ClientError{Op: "persist access token", Err: err}
		}
	}
	return nil
}

// ensureConnected lazily initializes the client before handling a request.
func (c *Client) ensureConnected(ctx context.Context) error {
	return c.Connect(ctx)
}

// IsConnected reports whether Connect has completed successfully.
func (c *Client) IsConnected() bool {
	return c.conn.IsInitialized()
}

// AccessToken returns the bearer token in use, if any.
func (c *Client) AccessToken() string {
	return c.engine.Token()
}

// RateLimitStatus returns a snapshot of the rate-limit bookkeeping.
func (c *Client) RateLimitStatus() types.RateLimitStatus {
	return c.engine.RateLimit.Snapshot()
}

// Request performs a rate-limited call against an arbitrary endpoint and
// returns the JSON body. Use it for endpoints without a dedicated method.
func (c *Client) Request(ctx context.Context, method, path string, params Params, files map[string]File) (json.RawMessage, error) {
	resp, err := c.do(ctx, &internal.Call{Method: method, Path: path, Params: params, Files: files, RateLimited: true})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// RequestRaw is like Request for endpoints that do not return JSON.
func (c *Client) RequestRaw(ctx context.Context, method, path string, params Params) ([]byte, error) {
	resp, err := c.do(ctx, &internal.Call{Method: method, Path: path, Params: params, RateLimited: true, Raw: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, call *internal.Call) (*internal.Response, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	return c.engine.Do(ctx, call)
}

// get performs a rate-limited GET and decodes the body into v.
func (c *Client) get(ctx context.Context, op, path string, params Params, v any) (*internal.Response, error) {
	return c.call(ctx, op, &internal.Call{Method: http.MethodGet, Path: path, Params: params, RateLimited: true}, v)
}

// call performs call and decodes the body into v. Failures are wrapped in
// a ClientError naming op.
func (c *Client) call(ctx context.Context, op string, call *internal.Call, v any) (*internal.Response, error) {
	call.RateLimited = true
	resp, err := c.do(ctx, call)
	if err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	if err := resp.Decode(v); err != nil {
		return nil, &ClientError{Op: op, Err: err}
	}
	return resp, nil
}

// ClientError wraps a failed API operation. Use errors.As with the types in
// pkg/errors to inspect the cause.
type ClientError struct {
	// Op names the failed operation, e.g. "get status".
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ClientError.
func (e *ClientError) Error() string {
	var sb strings.Builder
	sb.WriteString("mastodon client error")
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
