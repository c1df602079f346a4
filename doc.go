// Package mastodon provides a Go client for the Mastodon REST and streaming APIs.
//
// # Overview
//
// The client wraps a request engine that follows the server's X-RateLimit-*
// headers, and a streaming layer that turns server-sent events (or websocket
// frames) into typed callbacks.
//
// # Features
//
//   - Bearer token or OAuth password-grant authentication
//   - Credential files compatible with other Mastodon tooling
//   - Three rate-limit strategies: throw, wait and pace
//   - Link-header pagination with pages and iterators
//   - Thread reconstruction from a status context
//   - Streaming with optional reconnect and exponential backoff
//   - Structured logging via log/slog and optional Prometheus metrics
//
// # Quick Start
//
//	client, err := mastodon.NewClient(&mastodon.Config{
//		BaseURL:     "https://mastodon.social",
//		AccessToken: os.Getenv("MASTODON_TOKEN"),
//		UserAgent:   "myapp/1.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	status, err := client.PostStatus(ctx, &types.StatusRequest{Status: "Hello from Go"})
//
// # Connection Lifecycle
//
// NewClient validates its configuration and loads credential files but does
// not talk to the server. When Username and Password are configured, the
// first API call (or an explicit Connect) exchanges them for an access token,
// which is written back to AccessTokenFile if one is set.
//
// Registering an application is a separate, unauthenticated step:
//
//	app, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
//		BaseURL:    "https://mastodon.social",
//		ClientName: "myapp",
//		ToFile:     "clientcred.secret",
//	})
//
// # Rate Limiting
//
// Mastodon reports the remaining quota of the current window with every
// response. Config.RateLimitMethod selects what the client does with it:
//
//   - "throw" never sleeps and returns a *errors.RateLimitError when the server
//     throttles a call.
//   - "wait" sleeps until the window resets once the quota is used up, and
//     resends throttled calls.
//   - "pace" (the default) additionally spreads calls evenly over the window,
//     sleeping before each call. PaceFactor values above one leave headroom.
//
// Sleeps never exceed five minutes and are interrupted by context
// cancellation, which returns a *errors.RateLimitError wrapping ctx.Err().
// RateLimitStatus returns the current bookkeeping.
//
// # Pagination
//
// List endpoints return a Page whose Next and Prev cursors come from the Link
// header:
//
//	page, err := client.HomeTimeline(ctx, &types.TimelineRequest{Pagination: types.Pagination{Limit: 40}})
//	for page.HasNext() {
//		page, err = mastodon.FetchPage[*types.Status](ctx, client, page.Next)
//		...
//	}
//
// Iterators hide the cursors:
//
//	it := client.NewHomeIterator(ctx, nil, 200)
//	for it.HasNext() {
//		status, err := it.Next()
//		...
//	}
//
// # Streaming
//
// Stream methods block until the context is cancelled, the server closes the
// connection or a handler returns an error:
//
//	err := client.StreamUser(ctx, &streaming.Handlers{
//		OnUpdate: func(s *types.Status) error {
//			fmt.Println(s.Content)
//			return nil
//		},
//		OnNotification: func(n *types.Notification) error { ... },
//	})
//
// Events without a handler are dropped. Set Config.StreamReconnect to
// reconnect after network failures and server errors.
//
// # Error Handling
//
// Failed calls return a *ClientError naming the operation. Use errors.As with
// the types in pkg/errors to inspect the cause:
//
//	var notFound *errors.NotFoundError
//	if errors.As(err, &notFound) {
//		// the status was deleted
//	}
//
// Arguments are validated before anything is sent; invalid input yields an
// *errors.IllegalArgumentError.
//
// # Logging
//
// Pass a *slog.Logger in Config.Logger, or set Config.Debug to log every call
// to stderr.
package mastodon
