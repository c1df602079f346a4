package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const (
	defaultTokenEndpointPath = "oauth/token"
	appsEndpointPath         = "api/v1/apps"

	// OOBRedirectURI is the out-of-band redirect used by non-web clients.
	OOBRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
)

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"read", "write", "follow", "push"}

// Requester performs API calls. *Client implements it.
type Requester interface {
	Do(ctx context.Context, call *Call) (*Response, error)
}

// Authenticator exchanges user credentials for an access token using the
// OAuth password grant.
type Authenticator struct {
	engine       Requester
	clientID     string
	clientSecret string
	username     string
	password     string
	scopes       []string
	tokenPath    string
}

// NewAuthenticator creates a new authenticator.
// The tokenPath parameter can be an empty string to use the default token endpoint.
func NewAuthenticator(engine Requester, username, password, clientID, clientSecret string, scopes []string, tokenPath string) (*Authenticator, error) {
	if engine == nil {
		return nil, &pkgerrs.ConfigError{Field: "engine", Message: "request engine cannot be nil"}
	}
	if clientID == "" || clientSecret == "" {
		return nil, &pkgerrs.ConfigError{Field: "ClientID", Message: "client id and secret are required for the password grant"}
	}
	if username == "" || password == "" {
		return nil, &pkgerrs.ConfigError{Field: "Username", Message: "username and password are required for the password grant"}
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	if tokenPath == "" {
		tokenPath = defaultTokenEndpointPath
	}

	return &Authenticator{
		engine:       engine,
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		scopes:       append([]string{}, scopes...),
		tokenPath:    tokenPath,
	}, nil
}

// GetToken performs the password grant flow to get an access token. The call
// bypasses rate-limit accounting.
func (a *Authenticator) GetToken(ctx context.Context) (*types.Token, error) {
	resp, err := a.engine.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   a.tokenPath,
		Params: Params{
			"grant_type":    "password",
			"username":      a.username,
			"password":      a.password,
			"client_id":     a.clientID,
			"client_secret": a.clientSecret,
			"scope":         strings.Join(a.scopes, " "),
		},
	})
	if err != nil {
		return nil, wrapAuthError("token exchange failed", err)
	}

	var token types.Token
	if err := resp.Decode(&token); err != nil {
		return nil, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err}
	}
	if token.AccessToken == "" {
		return nil, &pkgerrs.AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Message:    "access token was empty in response",
		}
	}

	if missing := missingScopes(a.scopes, token.Scopes()); len(missing) > 0 && token.Scope != "" {
		return nil, &pkgerrs.AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("granted scopes %q do not contain requested scopes %q", token.Scope, strings.Join(missing, " ")),
		}
	}

	return &token, nil
}

// AppRegistration describes an application to register with an instance.
type AppRegistration struct {
	ClientName   string
	RedirectURIs string
	Scopes       []string
	Website      string
}

// RegisterApp creates an OAuth application and returns its client credentials.
func RegisterApp(ctx context.Context, engine Requester, reg AppRegistration) (*types.Application, error) {
	if engine == nil {
		return nil, &pkgerrs.ConfigError{Field: "engine", Message: "request engine cannot be nil"}
	}
	if strings.TrimSpace(reg.ClientName) == "" {
		return nil, &pkgerrs.IllegalArgumentError{Argument: "client_name", Message: "client name cannot be empty"}
	}
	if reg.RedirectURIs == "" {
		reg.RedirectURIs = OOBRedirectURI
	}
	scopes := reg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	params := Params{
		"client_name":   reg.ClientName,
		"redirect_uris": reg.RedirectURIs,
		"scopes":        strings.Join(scopes, " "),
	}
	if reg.Website != "" {
		params["website"] = reg.Website
	}

	resp, err := engine.Do(ctx, &Call{Method: http.MethodPost, Path: appsEndpointPath, Params: params})
	if err != nil {
		return nil, wrapAuthError("app registration failed", err)
	}

	var app types.Application
	if err := resp.Decode(&app); err != nil {
		return nil, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err}
	}
	if app.ClientID == "" || app.ClientSecret == "" {
		return nil, &pkgerrs.AuthError{StatusCode: resp.StatusCode, Message: "registration response is missing client credentials"}
	}
	return &app, nil
}

// missingScopes returns the requested scopes not covered by granted. A
// top-level scope such as "read" covers its sub-scopes ("read:statuses").
func missingScopes(requested, granted []string) []string {
	have := make(map[string]bool, len(granted))
	for _, g := range granted {
		have[g] = true
	}

	var missing []string
	for _, r := range requested {
		if have[r] {
			continue
		}
		if parent, _, ok := strings.Cut(r, ":"); ok && have[parent] {
			continue
		}
		missing = append(missing, r)
	}
	return missing
}

func wrapAuthError(msg string, err error) error {
	authErr := &pkgerrs.AuthError{Message: msg, Err: err}

	var apiErr *pkgerrs.APIError
	if errors.As(err, &apiErr) {
		authErr.StatusCode = apiErr.StatusCode
	}
	return authErr
}
