// Command toot is a small command-line client built on the mastodon package.
//
// Options come from flags, the environment (a .env file in the working
// directory is loaded first) and an optional YAML profile, in that order of
// precedence.
//
// Usage:
//
//	toot --profile ~/.config/toot/profile.yaml register --name mytool
//	toot login --username me@example.com --password secret
//	toot post "Hello from the terminal"
//	toot timeline --kind local --limit 5
//	toot stream --stream public:local --reconnect
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mastodon "github.com/jamesprial/go-mastodon-api-wrapper"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/metrics"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/streaming"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const version = "0.1.0"

func main() {
	opts, command, err := ParseOptions(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		if !errors.As(err, &flagsErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	logger, closer := opts.NewLogger(os.Stderr)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, command, logger, os.Stdout); err != nil {
		logger.Error("command failed", "command", command, "error", err)
		fmt.Fprintf(os.Stderr, "toot %s: %v\n", command, err)
		closer.Close()
		stop()
		os.Exit(1)
	}
}

type app struct {
	opts   *Options
	client *mastodon.Client
	logger *slog.Logger
	out    io.Writer
}

func run(ctx context.Context, opts *Options, command string, logger *slog.Logger, out io.Writer) error {
	if command == "register" {
		return register(ctx, opts, logger, out)
	}

	cfg := opts.ClientConfig(logger)
	var registry *prometheus.Registry
	switch command {
	case "login":
		cfg.Username = opts.Login.Username
		cfg.Password = opts.Login.Password
		cfg.Scopes = opts.Login.Scopes
	case "stream":
		cfg.StreamReconnect = opts.Stream.Reconnect
		if opts.MetricsAddress != "" {
			registry = prometheus.NewRegistry()
			cfg.Metrics = metrics.New(registry)
		}
	}

	client, err := mastodon.NewClient(cfg)
	if err != nil {
		return err
	}
	a := &app{opts: opts, client: client, logger: logger, out: out}

	switch command {
	case "login":
		return a.login(ctx)
	case "post":
		return a.post(ctx)
	case "timeline":
		return a.timeline(ctx)
	case "notifications":
		return a.notifications(ctx)
	case "stream":
		if registry != nil {
			go a.serveMetrics(ctx, registry)
		}
		return a.stream(ctx)
	case "ratelimit":
		return a.rateLimit(ctx)
	case "health":
		return a.health(ctx)
	}
	return fmt.Errorf("unknown command %q", command)
}

func register(ctx context.Context, opts *Options, logger *slog.Logger, out io.Writer) error {
	if opts.ClientFile == "" {
		return errors.New("--client-file is required to save the application credentials")
	}
	registered, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
		BaseURL:    opts.BaseURL,
		ClientName: opts.Register.Name,
		Website:    opts.Register.Website,
		Scopes:     opts.Register.Scopes,
		ToFile:     opts.ClientFile,
		UserAgent:  "toot/" + version,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered %q, credentials saved to %s\n", registered.Name, opts.ClientFile)

	if opts.Profile != "" {
		profile, err := LoadProfile(opts.Profile)
		if err != nil {
			return err
		}
		if profile.BaseURL == "" {
			profile.BaseURL = opts.BaseURL
		}
		if abs, err := filepath.Abs(opts.ClientFile); err == nil {
			profile.ClientFile = abs
		}
		if err := SaveProfile(profile, opts.Profile); err != nil {
			return err
		}
		fmt.Fprintf(out, "Profile updated: %s\n", opts.Profile)
	}
	return nil
}

func (a *app) login(ctx context.Context) error {
	if err := a.client.Connect(ctx); err != nil {
		return err
	}
	me, err := a.client.VerifyCredentials(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as @%s\n", me.Acct)
	if a.opts.TokenFile != "" {
		fmt.Fprintf(a.out, "Access token saved to %s\n", a.opts.TokenFile)
	}
	return nil
}

func (a *app) post(ctx context.Context) error {
	cmd := a.opts.Post
	text := strings.Join(cmd.Args.Text, " ")
	req := &types.StatusRequest{
		Status:      text,
		InReplyToID: cmd.ReplyTo,
		Sensitive:   cmd.Sensitive,
		SpoilerText: cmd.SpoilerText,
		Visibility:  cmd.Visibility,
		Language:    cmd.Language,
	}

	for _, path := range cmd.Media {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		media, err := a.client.UploadMedia(ctx, &types.MediaRequest{
			FileName:    filepath.Base(path),
			Data:        data,
			Description: cmd.Description,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Uploaded %s (%s) as %s\n", filepath.Base(path), humanize.Bytes(uint64(len(data))), media.ID)
		req.MediaIDs = append(req.MediaIDs, media.ID)
	}

	if cmd.In != "" {
		delay, err := time.ParseDuration(cmd.In)
		if err != nil {
			return fmt.Errorf("invalid --in: %w", err)
		}
		at := time.Now().Add(delay)
		req.ScheduledAt = &at
		scheduled, err := a.client.ScheduleStatus(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Scheduled %s for %s (%s)\n", scheduled.ID,
			scheduled.ScheduledAt.Local().Format(time.RFC1123), humanize.Time(scheduled.ScheduledAt))
		return nil
	}

	status, err := a.client.PostStatus(ctx, req)
	if err != nil {
		return err
	}
	link := status.URI
	if status.URL != nil {
		link = *status.URL
	}
	fmt.Fprintf(a.out, "Posted %s\n", link)
	return nil
}

func (a *app) timeline(ctx context.Context) error {
	cmd := a.opts.Timeline
	req := &types.TimelineRequest{Pagination: types.Pagination{Limit: cmd.Limit}}

	var (
		page *mastodon.Page[*types.Status]
		err  error
	)
	switch cmd.Kind {
	case "home":
		page, err = a.client.HomeTimeline(ctx, req)
	case "public":
		page, err = a.client.PublicTimeline(ctx, req)
	case "local":
		req.Local = true
		page, err = a.client.PublicTimeline(ctx, req)
	case "tag":
		page, err = a.client.HashtagTimeline(ctx, cmd.Tag, req)
	case "list":
		page, err = a.client.ListTimeline(ctx, cmd.List, req)
	}
	if err != nil {
		return err
	}
	for _, s := range page.Items {
		printStatus(a.out, s)
	}
	return nil
}

func (a *app) notifications(ctx context.Context) error {
	cmd := a.opts.Notifications
	page, err := a.client.Notifications(ctx, &types.NotificationsRequest{
		Pagination: types.Pagination{Limit: cmd.Limit},
		Types:      cmd.Types,
	})
	if err != nil {
		return err
	}
	for _, n := range page.Items {
		printNotification(a.out, n)
	}
	return nil
}

func (a *app) stream(ctx context.Context) error {
	cmd := a.opts.Stream
	params := url.Values{}
	if cmd.Tag != "" {
		params.Set("tag", strings.TrimPrefix(cmd.Tag, "#"))
	}
	if cmd.List != "" {
		params.Set("list", cmd.List)
	}

	var events int
	h := &streaming.Handlers{
		OnUpdate: func(s *types.Status) error {
			events++
			printStatus(a.out, s)
			return nil
		},
		OnStatusUpdate: func(s *types.Status) error {
			events++
			fmt.Fprint(a.out, "(edited) ")
			printStatus(a.out, s)
			return nil
		},
		OnNotification: func(n *types.Notification) error {
			events++
			printNotification(a.out, n)
			return nil
		},
		OnDelete: func(id string) error {
			events++
			fmt.Fprintf(a.out, "deleted %s\n", id)
			return nil
		},
		OnUnknownEvent: func(name string, _ json.RawMessage) {
			a.logger.Debug("ignoring event", "event", name)
		},
	}

	started := time.Now()
	a.logger.Info("streaming", "stream", cmd.Stream, "websocket", cmd.WebSocket)
	var err error
	if cmd.WebSocket {
		err = a.client.StreamWebSocket(ctx, cmd.Stream, params, h)
	} else {
		err = a.client.Stream(ctx, cmd.Stream, params, h)
	}
	a.logger.Info("stream ended", "events", events, "duration", time.Since(started).Round(time.Second))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *app) serveMetrics(ctx context.Context, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.opts.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.logger.Info("serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("metrics server failed", "error", err)
	}
}

func (a *app) rateLimit(ctx context.Context) error {
	if _, err := a.client.VerifyCredentials(ctx); err != nil {
		return err
	}
	printRateLimit(a.out, a.client.RateLimitStatus(), time.Now())
	return nil
}

func (a *app) health(ctx context.Context) error {
	ok, err := a.client.StreamHealthy(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("streaming API is unhealthy")
	}
	fmt.Fprintln(a.out, "streaming API is healthy")
	return nil
}

func printRateLimit(w io.Writer, rl types.RateLimitStatus, now time.Time) {
	fmt.Fprintf(w, "method:    %s\n", rl.Method)
	fmt.Fprintf(w, "remaining: %s of %s\n", humanize.Comma(int64(rl.Remaining)), humanize.Comma(int64(rl.Limit)))
	fmt.Fprintf(w, "resets:    %s\n", humanize.RelTime(rl.ResetAt, now, "ago", "from now"))
}

func printStatus(w io.Writer, s *types.Status) {
	author := "?"
	if s.Account != nil {
		author = s.Account.Acct
	}
	fmt.Fprintf(w, "[%s] @%s (%s)\n", s.ID, author, humanize.Time(s.CreatedAt))
	if s.SpoilerText != "" {
		fmt.Fprintf(w, "  CW: %s\n", s.SpoilerText)
	}
	for _, line := range strings.Split(plainText(s.Content), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

func printNotification(w io.Writer, n *types.Notification) {
	from := "?"
	if n.Account != nil {
		from = n.Account.Acct
	}
	fmt.Fprintf(w, "[%s] %s from @%s (%s)\n", n.ID, n.Type, from, humanize.Time(n.CreatedAt))
	if n.Status != nil {
		fmt.Fprintf(w, "  %s\n", plainText(n.Status.Content))
	}
}

var (
	paragraphBreak = regexp.MustCompile(`(?i)</p>\s*<p>|<br\s*/?>`)
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
)

// plainText reduces status HTML to text with paragraph breaks kept.
func plainText(content string) string {
	text := paragraphBreak.ReplaceAllString(content, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}
