package mastodon

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// DefaultScopes are requested when no scopes are configured.
var DefaultScopes = internal.DefaultScopes

// AppConfig describes an application to register with an instance.
type AppConfig struct {
	// BaseURL is the instance URL.
	BaseURL string
	// ClientName is shown to users when they authorize the app.
	ClientName string
	// RedirectURIs defaults to the out-of-band URI.
	RedirectURIs string
	Scopes       []string
	Website      string
	// ToFile, when set, receives the client id, secret and instance URL in
	// the format read by Config.ClientCredFile.
	ToFile string

	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// RegisterApp registers a new OAuth application. Registration needs no
// credentials and is not rate limited.
func RegisterApp(ctx context.Context, cfg *AppConfig) (*types.Application, error) {
	if cfg == nil {
		return nil, &pkgerrs.ConfigError{Message: "config cannot be nil"}
	}
	if cfg.BaseURL == "" {
		return nil, &pkgerrs.ConfigError{Field: "BaseURL", Message: "instance URL is required"}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine, err := internal.NewClient(httpClient, "", cfg.BaseURL, ua, nil, logger)
	if err != nil {
		return nil, err
	}
	app, err := internal.RegisterApp(ctx, engine, internal.AppRegistration{
		ClientName:   cfg.ClientName,
		RedirectURIs: cfg.RedirectURIs,
		Scopes:       cfg.Scopes,
		Website:      cfg.Website,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("registered application", "name", app.Name, "instance", engine.BaseURL.String())

	if cfg.ToFile != "" {
		err := internal.WriteClientCredentials(cfg.ToFile, internal.ClientCredentials{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			BaseURL:      engine.BaseURL.String(),
		})
		if err != nil {
			return app, &ClientError{Op: "persist client credentials", Err: err}
		}
	}
	return app, nil
}
