package mastodon_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	mastodon "github.com/jamesprial/go-mastodon-api-wrapper"
	pkgerrs "github.com/jamesprial/go-mastodon-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
	"github.com/jamesprial/go-mastodon-api-wrapper/test_helpers"
)

const statusesPage1 = `[{"id":"30","content":"c"},{"id":"20","content":"b"}]`
const statusesPage2 = `[{"id":"10","content":"a"}]`

func TestHomeTimeline_Pagination(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()

	next := ms.URL() + "/api/v1/timelines/home?max_id=20&limit=2"
	prev := ms.URL() + "/api/v1/timelines/home?min_id=30"
	ms.SetSequence(http.MethodGet, "/api/v1/timelines/home",
		&test_helpers.MockResponse{
			Status:  http.StatusOK,
			Body:    statusesPage1,
			Headers: map[string]string{"Link": `<` + next + `>; rel="next", <` + prev + `>; rel="prev"`},
		},
		&test_helpers.MockResponse{Status: http.StatusOK, Body: statusesPage2},
	)

	ctx := context.Background()
	page, err := tc.HomeTimeline(ctx, &types.TimelineRequest{Pagination: types.Pagination{Limit: 2}})
	if err != nil {
		t.Fatalf("HomeTimeline: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "30" {
		t.Fatalf("unexpected first page: %+v", page.Items)
	}
	if !page.HasNext() || page.Prev == nil {
		t.Fatal("expected next and prev cursors")
	}
	if page.Next.Path != "api/v1/timelines/home" || page.Next.Params["max_id"] != "20" {
		t.Errorf("next cursor = %+v", page.Next)
	}

	first, err := ms.GetLastRequest(http.MethodGet, "/api/v1/timelines/home")
	if err != nil {
		t.Fatal(err)
	}
	if first.Query.Get("limit") != "2" {
		t.Errorf("limit = %q", first.Query.Get("limit"))
	}
	if got := first.Headers.Get("Authorization"); got != "Bearer mock_token" {
		t.Errorf("Authorization = %q", got)
	}

	older, err := mastodon.FetchPage[*types.Status](ctx, tc.Client, page.Next)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(older.Items) != 1 || older.Items[0].ID != "10" || older.HasNext() {
		t.Errorf("unexpected second page: %+v", older)
	}
	second, _ := ms.GetLastRequest(http.MethodGet, "/api/v1/timelines/home")
	if second.Query.Get("max_id") != "20" {
		t.Errorf("second request max_id = %q", second.Query.Get("max_id"))
	}

	empty, err := mastodon.FetchPage[*types.Status](ctx, tc.Client, older.Next)
	if err != nil || len(empty.Items) != 0 {
		t.Errorf("FetchPage(nil) = %+v, %v", empty, err)
	}
}

func TestHomeIterator(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()

	next := ms.URL() + "/api/v1/timelines/home?max_id=20"
	ms.SetSequence(http.MethodGet, "/api/v1/timelines/home",
		&test_helpers.MockResponse{Body: statusesPage1, Headers: map[string]string{"Link": `<` + next + `>; rel="next"`}},
		&test_helpers.MockResponse{Body: statusesPage2},
	)

	it := tc.NewHomeIterator(context.Background(), nil, 0)
	statuses, err := it.Collect(0)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var ids []string
	for _, s := range statuses {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "30,20,10" {
		t.Errorf("ids = %v", ids)
	}
	if it.HasNext() {
		t.Error("iterator should be exhausted")
	}
	if _, err := it.Next(); !errors.Is(err, mastodon.ErrIteratorDone) {
		t.Errorf("Next after end = %v", err)
	}
	if err := ms.AssertRequestCount(http.MethodGet, "/api/v1/timelines/home", 2); err != nil {
		t.Error(err)
	}
}

func TestHomeIterator_MaxItems(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	next := ms.URL() + "/api/v1/timelines/home?max_id=20"
	ms.SetResponse(http.MethodGet, "/api/v1/timelines/home",
		&test_helpers.MockResponse{Body: statusesPage1, Headers: map[string]string{"Link": `<` + next + `>; rel="next"`}})

	statuses, err := tc.NewHomeIterator(context.Background(), nil, 1).Collect(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Errorf("got %d statuses, want 1", len(statuses))
	}
}

func TestIterators_RejectInvalidArguments(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ctx := context.Background()

	tests := []struct {
		name string
		next func() error
	}{
		{"account id escapes its path", func() error {
			_, err := tc.NewAccountStatusesIterator(ctx, "../../../oauth/revoke", 0).Next()
			return err
		}},
		{"empty account id", func() error {
			_, err := tc.NewAccountStatusesIterator(ctx, "", 0).Next()
			return err
		}},
		{"home limit too large", func() error {
			_, err := tc.NewHomeIterator(ctx, &types.TimelineRequest{Pagination: types.Pagination{Limit: 1000}}, 0).Next()
			return err
		}},
		{"public negative limit", func() error {
			_, err := tc.NewPublicIterator(ctx, &types.TimelineRequest{Pagination: types.Pagination{Limit: -1}}, 0).Next()
			return err
		}},
		{"notification limit too large", func() error {
			_, err := tc.NewNotificationIterator(ctx, &types.NotificationsRequest{Pagination: types.Pagination{Limit: 81}}, 0).Next()
			return err
		}},
		{"notification account id", func() error {
			_, err := tc.NewNotificationIterator(ctx, &types.NotificationsRequest{AccountID: "a/b"}, 0).Next()
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms.ClearLog()
			var argErr *pkgerrs.IllegalArgumentError
			if err := tt.next(); !errors.As(err, &argErr) {
				t.Errorf("expected IllegalArgumentError, got %v", err)
			}
			if log := ms.GetRequestLog(); len(log) != 0 {
				t.Errorf("sent %d requests for invalid input: %+v", len(log), log)
			}
		})
	}

	ms.SetJSON(http.MethodGet, "/api/v1/accounts/7/statuses", statusesPage2)
	statuses, err := tc.NewAccountStatusesIterator(ctx, "7", 0).Collect(0)
	if err != nil || len(statuses) != 1 {
		t.Errorf("valid account iterator = %v, %v", statuses, err)
	}
}

func TestTimelines_Params(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetJSON(http.MethodGet, "/api/v1/timelines/public", `[]`)
	ms.SetJSON(http.MethodGet, "/api/v1/timelines/tag/golang", `[]`)
	ms.SetJSON(http.MethodGet, "/api/v1/timelines/list/42", `[]`)
	ctx := context.Background()

	if _, err := tc.PublicTimeline(ctx, &types.TimelineRequest{Local: true, OnlyMedia: true}); err != nil {
		t.Fatal(err)
	}
	req, _ := ms.GetLastRequest(http.MethodGet, "/api/v1/timelines/public")
	if req.Query.Get("local") != "true" || req.Query.Get("only_media") != "true" || req.Query.Has("remote") {
		t.Errorf("public query = %v", req.Query)
	}

	if _, err := tc.HashtagTimeline(ctx, "#golang", nil); err != nil {
		t.Fatalf("HashtagTimeline: %v", err)
	}
	if _, err := tc.ListTimeline(ctx, "42", nil); err != nil {
		t.Fatalf("ListTimeline: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"bad hashtag", func() error { _, err := tc.HashtagTimeline(ctx, "not a tag", nil); return err }},
		{"bad list id", func() error { _, err := tc.ListTimeline(ctx, "", nil); return err }},
		{"limit too large", func() error {
			_, err := tc.HomeTimeline(ctx, &types.TimelineRequest{Pagination: types.Pagination{Limit: 500}})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var argErr *pkgerrs.IllegalArgumentError
			if err := tt.call(); !errors.As(err, &argErr) {
				t.Errorf("expected IllegalArgumentError, got %v", err)
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetJSON(http.MethodGet, "/api/v1/notifications",
		`[{"id":"5","type":"mention","created_at":"2024-01-01T00:00:00Z","account":{"id":"1","acct":"bob"}}]`)
	ms.SetJSON(http.MethodPost, "/api/v1/notifications/5/dismiss", `{}`)
	ms.SetJSON(http.MethodPost, "/api/v1/notifications/clear", `{}`)
	ctx := context.Background()

	page, err := tc.Notifications(ctx, &types.NotificationsRequest{
		Types:        []string{types.NotificationMention, types.NotificationFollow},
		ExcludeTypes: []string{types.NotificationPoll},
	})
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != types.NotificationMention {
		t.Fatalf("items = %+v", page.Items)
	}
	req, _ := ms.GetLastRequest(http.MethodGet, "/api/v1/notifications")
	if got := req.Query["types[]"]; len(got) != 2 {
		t.Errorf("types[] = %v", got)
	}
	if got := req.Query["exclude_types[]"]; len(got) != 1 || got[0] != "poll" {
		t.Errorf("exclude_types[] = %v", got)
	}

	if err := tc.DismissNotification(ctx, "5"); err != nil {
		t.Errorf("DismissNotification: %v", err)
	}
	if err := tc.ClearNotifications(ctx); err != nil {
		t.Errorf("ClearNotifications: %v", err)
	}
}

func TestAccounts(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetJSON(http.MethodGet, "/api/v1/accounts/relationships", `[{"id":"1","following":true},{"id":"2"}]`)
	ms.SetJSON(http.MethodPost, "/api/v1/accounts/2/follow", `{"id":"2","following":true}`)
	ms.SetJSON(http.MethodGet, "/api/v1/accounts/lookup", `{"id":"2","acct":"bob@remote.example"}`)
	ctx := context.Background()

	rels, err := tc.Relationships(ctx, []string{"1", "2"})
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	if len(rels) != 2 || !rels[0].Following {
		t.Errorf("relationships = %+v", rels)
	}
	req, _ := ms.GetLastRequest(http.MethodGet, "/api/v1/accounts/relationships")
	if got := req.Query["id[]"]; len(got) != 2 || got[1] != "2" {
		t.Errorf("id[] = %v", got)
	}

	rel, err := tc.Follow(ctx, "2")
	if err != nil || !rel.Following {
		t.Errorf("Follow = %+v, %v", rel, err)
	}

	account, err := tc.LookupAccount(ctx, "bob@remote.example")
	if err != nil {
		t.Fatalf("LookupAccount: %v", err)
	}
	if account.Acct != "bob@remote.example" {
		t.Errorf("Acct = %q", account.Acct)
	}
}

func TestErrors_StatusMapping(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetResponse(http.MethodGet, "/api/v1/statuses/1", &test_helpers.MockResponse{Status: http.StatusNotFound, Body: `{"error":"Record not found"}`})
	ms.SetResponse(http.MethodGet, "/api/v1/statuses/2", &test_helpers.MockResponse{Status: http.StatusInternalServerError, Body: `{"error":"boom"}`})
	ms.SetResponse(http.MethodGet, "/api/v1/statuses/3", &test_helpers.MockResponse{Status: http.StatusUnprocessableEntity, Body: `{"error":"Validation failed"}`})
	ctx := context.Background()

	_, err := tc.Status(ctx, "1")
	if !pkgerrs.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	var clientErr *mastodon.ClientError
	if !errors.As(err, &clientErr) || clientErr.Op != "get status" {
		t.Errorf("expected ClientError for get status, got %v", err)
	}

	for _, id := range []string{"2", "3"} {
		_, err := tc.Status(ctx, id)
		var apiErr *pkgerrs.APIError
		if !errors.As(err, &apiErr) {
			t.Errorf("status %s: expected APIError, got %v", id, err)
		}
	}
}

func TestRateLimit_ThrowMode(t *testing.T) {
	cfg := test_helpers.DefaultMockClientConfig()
	cfg.RateLimitMethod = mastodon.RateLimitThrow
	tc := test_helpers.NewTestClient(&cfg)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetRateLimit(&test_helpers.RateLimitHeaders{Limit: 300, Remaining: 0, Reset: time.Now().Add(time.Minute)})
	ms.SetResponse(http.MethodGet, "/api/v1/statuses/1", &test_helpers.MockResponse{Status: http.StatusTooManyRequests, Body: `{"error":"Too many requests"}`})

	_, err := tc.Status(context.Background(), "1")
	if !pkgerrs.IsRateLimited(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if err := ms.AssertRequestCount(http.MethodGet, "/api/v1/statuses/1", 1); err != nil {
		t.Error(err)
	}
	if got := tc.RateLimitStatus(); got.Remaining != 0 || got.Limit != 300 {
		t.Errorf("rate limit status = %+v", got)
	}
}

func TestRateLimit_WaitModeRetriesThrottled(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetSequence(http.MethodGet, "/api/v1/statuses/1",
		&test_helpers.MockResponse{Status: http.StatusOK, Body: `{"error":"Throttled"}`},
		&test_helpers.MockResponse{Status: http.StatusOK, Body: `{"id":"1","content":"ok"}`},
	)

	start := time.Now()
	status, err := tc.Status(context.Background(), "1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ID != "1" {
		t.Errorf("ID = %q", status.ID)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("throttled call resent after %v, want at least 1s", elapsed)
	}
	if err := ms.AssertRequestCount(http.MethodGet, "/api/v1/statuses/1", 2); err != nil {
		t.Error(err)
	}
}

func TestUploadMedia(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetResponse(http.MethodPost, "/api/v2/media", &test_helpers.MockResponse{
		Status: http.StatusAccepted,
		Body:   `{"id":"77","type":"image","url":null,"preview_url":"p"}`,
	})

	media, err := tc.UploadMedia(context.Background(), &types.MediaRequest{
		FileName:    "cat.png",
		Data:        []byte("meow"),
		Description: "a cat",
		Focus:       &[2]float64{0.5, -0.25},
	})
	if err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
	if media.ID != "77" || media.URL != nil {
		t.Errorf("media = %+v", media)
	}

	req, _ := ms.GetLastRequest(http.MethodPost, "/api/v2/media")
	if ct := req.Headers.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{`filename="cat.png"`, "Content-Type: image/png", "a cat", "0.5,-0.25", "meow"} {
		if !strings.Contains(req.Body, want) {
			t.Errorf("multipart body missing %q", want)
		}
	}

	_, err = tc.UploadMedia(context.Background(), &types.MediaRequest{FileName: "empty.png"})
	var argErr *pkgerrs.IllegalArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("expected IllegalArgumentError for empty upload, got %v", err)
	}
}

func TestThread(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetJSON(http.MethodGet, "/api/v1/statuses/2", `{"id":"2","in_reply_to_id":"1","account":{"id":"a","acct":"alice"}}`)
	ms.SetJSON(http.MethodGet, "/api/v1/statuses/2/context", `{
		"ancestors":[{"id":"1","account":{"id":"b","acct":"bob"}}],
		"descendants":[{"id":"3","in_reply_to_id":"2","account":{"id":"b","acct":"bob"}},{"id":"4","in_reply_to_id":"1","account":{"id":"c","acct":"carol"}}]
	}`)

	tree, err := tc.Thread(context.Background(), "2")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if tree.Count() != 4 || tree.Depth() != 2 {
		t.Errorf("Count = %d, Depth = %d", tree.Count(), tree.Depth())
	}
	if roots := tree.Roots(); len(roots) != 1 || roots[0].ID != "1" {
		t.Errorf("roots = %v", roots)
	}
	if got := tree.GetByAuthor("bob"); len(got) != 2 {
		t.Errorf("GetByAuthor(bob) = %d statuses", len(got))
	}

	it := mastodon.NewThreadIterator(tree, &mastodon.ThreadIteratorOptions{DepthFirst: false})
	var order []string
	for it.HasNext() {
		s, _, err := it.Next()
		if err != nil {
			break
		}
		order = append(order, s.ID)
	}
	if strings.Join(order, ",") != "1,2,4,3" {
		t.Errorf("breadth-first order = %v", order)
	}
}

func TestConcurrentClients(t *testing.T) {
	helper := test_helpers.NewConcurrentTestHelper(4)
	defer helper.Close()
	for _, tc := range helper.GetAllClients() {
		tc.MockServer().SetJSON(http.MethodGet, "/api/v1/accounts/verify_credentials", `{"id":"1","username":"me"}`)
	}

	errs := helper.RunConcurrentTest(func(tc *test_helpers.TestClient) error {
		for range 5 {
			if _, err := tc.VerifyCredentials(context.Background()); err != nil {
				return err
			}
		}
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}

func TestRequestRaw(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	text := map[string]string{"Content-Type": "text/plain"}
	ms.SetResponse(http.MethodGet, "/health", &test_helpers.MockResponse{Status: http.StatusOK, Body: "OK", Headers: text})
	ms.SetResponse(http.MethodGet, "/empty", &test_helpers.MockResponse{Status: http.StatusOK, Headers: text})
	ms.SetResponse(http.MethodGet, "/gone", &test_helpers.MockResponse{Status: http.StatusNotFound, Body: "Not Found", Headers: text})
	ms.SetResponse(http.MethodGet, "/busy", &test_helpers.MockResponse{Status: http.StatusServiceUnavailable, Body: "<html>busy</html>", Headers: text})
	ctx := context.Background()

	body, err := tc.RequestRaw(ctx, http.MethodGet, "health", nil)
	if err != nil {
		t.Fatalf("RequestRaw: %v", err)
	}
	if string(body) != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}

	// The JSON path rejects the same body.
	var apiErr *pkgerrs.APIError
	if _, err := tc.Request(ctx, http.MethodGet, "health", nil, nil); !errors.As(err, &apiErr) {
		t.Errorf("Request on a plain-text body: expected APIError, got %v", err)
	}

	body, err = tc.RequestRaw(ctx, http.MethodGet, "empty", nil)
	if err != nil || len(body) != 0 {
		t.Errorf("empty body = %q, %v", body, err)
	}

	if _, err := tc.RequestRaw(ctx, http.MethodGet, "gone", nil); !pkgerrs.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	_, err = tc.RequestRaw(ctx, http.MethodGet, "busy", nil)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected APIError 503, got %v", err)
	}
}

func TestUpdateMediaAndBookmark(t *testing.T) {
	tc := test_helpers.NewTestClient(nil)
	defer tc.Close()
	ms := tc.MockServer()
	ms.SetJSON(http.MethodPut, "/api/v1/media/77", `{"id":"77","type":"image","url":"u","preview_url":"p","description":"new alt"}`)
	ms.SetJSON(http.MethodPost, "/api/v1/statuses/9/bookmark", `{"id":"9","content":"c","bookmarked":true}`)
	ctx := context.Background()

	media, err := tc.UpdateMedia(ctx, "77", "new alt", &[2]float64{0.1, -0.2})
	if err != nil {
		t.Fatalf("UpdateMedia: %v", err)
	}
	if media.Description == nil || *media.Description != "new alt" {
		t.Errorf("media = %+v", media)
	}
	req, err := ms.GetLastRequest(http.MethodPut, "/api/v1/media/77")
	if err != nil {
		t.Fatal(err)
	}
	form := req.Form()
	if form.Get("description") != "new alt" || form.Get("focus") != "0.1,-0.2" {
		t.Errorf("update form = %v", form)
	}

	status, err := tc.Bookmark(ctx, "9")
	if err != nil {
		t.Fatalf("Bookmark: %v", err)
	}
	if status.Bookmarked == nil || !*status.Bookmarked {
		t.Errorf("status = %+v", status)
	}
	if err := ms.AssertRequestCount(http.MethodPost, "/api/v1/statuses/9/bookmark", 1); err != nil {
		t.Error(err)
	}

	ms.ClearLog()
	tests := []struct {
		name string
		call func() error
	}{
		{"media id", func() error { _, err := tc.UpdateMedia(ctx, "../1", "x", nil); return err }},
		{"focus out of range", func() error { _, err := tc.UpdateMedia(ctx, "77", "x", &[2]float64{2, 0}); return err }},
		{"bookmark id", func() error { _, err := tc.Bookmark(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var argErr *pkgerrs.IllegalArgumentError
			if err := tt.call(); !errors.As(err, &argErr) {
				t.Errorf("expected IllegalArgumentError, got %v", err)
			}
		})
	}
	if n := len(ms.GetRequestLog()); n != 0 {
		t.Errorf("%d requests sent for invalid input", n)
	}
}
