package test_generators

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

// StatusGenerator generates realistic statuses and reply threads for testing.
// IDs are increasing snowflake-like numbers so that newer statuses sort after
// older ones.
type StatusGenerator struct {
	rand       *rand.Rand
	nextID     int64
	now        time.Time
	templates  []string
	replies    []string
	accounts   []string
	tags       []string
	visibility []string
}

// ThreadOptions configures generated threads.
type ThreadOptions struct {
	// MaxReplies caps the replies to any single status.
	MaxReplies int
	// SensitiveRate is the fraction of statuses carrying a content warning.
	SensitiveRate float64
	// Authors restricts authorship to these accts when set.
	Authors []string
}

// NewStatusGenerator creates a new generator. A zero seed uses the clock.
func NewStatusGenerator(seed int64) *StatusGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &StatusGenerator{
		rand:   rand.New(rand.NewSource(seed)),
		nextID: 109000000000000000,
		now:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		templates: []string{
			"<p>Just shipped a new release of %s 🎉</p>",
			"<p>Anyone else running into problems with %s today?</p>",
			"<p>Hot take: %s is underrated.</p>",
			"<p>Reading about %s this morning. Thread below.</p>",
			"<p>Finally got %s working on my homelab.</p>",
			"<p>What are your favourite resources for learning %s?</p>",
		},
		replies: []string{
			"<p>Congrats!</p>",
			"<p>Same here, it was fine yesterday.</p>",
			"<p>Interesting, can you share more?</p>",
			"<p>I respectfully disagree.</p>",
			"<p>Thanks for posting this.</p>",
			"<p>Bookmarked for later.</p>",
		},
		accounts: []string{
			"alice", "bob", "carol@fosstodon.org", "dave@hachyderm.io",
			"erin", "frank@mastodon.online", "grace", "heidi@infosec.exchange",
		},
		tags:       []string{"golang", "rust", "selfhosting", "fediverse", "linux", "opensource"},
		visibility: []string{"public", "public", "public", "unlisted", "private"},
	}
}

// GenerateStatus creates a top-level status.
func (g *StatusGenerator) GenerateStatus() *types.Status {
	tag := g.randElement(g.tags)
	s := g.newStatus(g.randElement(g.accounts), fmt.Sprintf(g.randElement(g.templates), "#"+tag))
	s.Tags = []types.Tag{{Name: tag, URL: "https://mastodon.example/tags/" + tag}}
	return s
}

// GenerateStatuses creates count top-level statuses, newest first as a
// timeline would return them.
func (g *StatusGenerator) GenerateStatuses(count int) []*types.Status {
	statuses := make([]*types.Status, count)
	for i := range statuses {
		statuses[count-1-i] = g.GenerateStatus()
	}
	return statuses
}

// GenerateReply creates a reply to parent.
func (g *StatusGenerator) GenerateReply(parent *types.Status, author string) *types.Status {
	if author == "" {
		author = g.randElement(g.accounts)
	}
	s := g.newStatus(author, g.randElement(g.replies))
	parentID := parent.ID
	s.InReplyToID = &parentID
	if parent.Account != nil {
		accountID := parent.Account.ID
		s.InReplyToAccountID = &accountID
	}
	if parent.CreatedAt.After(s.CreatedAt) {
		s.CreatedAt = parent.CreatedAt.Add(time.Duration(g.rand.Intn(3600)+1) * time.Second)
	}
	return s
}

// GenerateThread creates a conversation of total statuses, the first being
// the root, in the order the server would list them (depth-first).
func (g *StatusGenerator) GenerateThread(total int, opts ThreadOptions) []*types.Status {
	if total <= 0 {
		return nil
	}
	if opts.MaxReplies <= 0 {
		opts.MaxReplies = 3
	}
	pick := func() string {
		if len(opts.Authors) > 0 {
			return opts.Authors[g.rand.Intn(len(opts.Authors))]
		}
		return g.randElement(g.accounts)
	}

	root := g.GenerateStatus()
	root.Account = g.account(pick())
	parents := []*types.Status{root}
	replyCount := map[string]int{}
	statuses := []*types.Status{root}
	for len(statuses) < total {
		parent := parents[g.rand.Intn(len(parents))]
		if replyCount[parent.ID] >= opts.MaxReplies {
			continue
		}
		reply := g.GenerateReply(parent, pick())
		if g.rand.Float64() < opts.SensitiveRate {
			reply.Sensitive = true
			reply.SpoilerText = "spoilers"
		}
		replyCount[parent.ID]++
		parent.RepliesCount++
		parents = append(parents, reply)
		statuses = append(statuses, reply)
	}
	return statuses
}

// GenerateChain creates a single reply chain of the given length; the last
// status is the deepest.
func (g *StatusGenerator) GenerateChain(length int) []*types.Status {
	if length <= 0 {
		return nil
	}
	chain := []*types.Status{g.GenerateStatus()}
	for len(chain) < length {
		chain = append(chain, g.GenerateReply(chain[len(chain)-1], ""))
	}
	return chain
}

// GenerateContext splits a thread around focus into a status context, the
// shape returned by the context endpoint.
func GenerateContext(thread []*types.Status, focus *types.Status) *types.Context {
	ctx := &types.Context{}
	byID := make(map[string]*types.Status, len(thread))
	for _, s := range thread {
		byID[s.ID] = s
	}

	ancestors := map[string]bool{}
	for p := byID[focus.ParentID()]; p != nil; p = byID[p.ParentID()] {
		if ancestors[p.ID] {
			break
		}
		ancestors[p.ID] = true
		ctx.Ancestors = append([]*types.Status{p}, ctx.Ancestors...)
	}

	descendants := map[string]bool{focus.ID: true}
	for _, s := range thread {
		if descendants[s.ParentID()] && !descendants[s.ID] {
			descendants[s.ID] = true
			ctx.Descendants = append(ctx.Descendants, s)
		}
	}
	return ctx
}

// GenerateNotification creates a notification of the given type.
func (g *StatusGenerator) GenerateNotification(kind string) *types.Notification {
	n := &types.Notification{
		EntityID:  types.EntityID{ID: g.id()},
		Type:      kind,
		CreatedAt: g.timestamp(),
		Account:   g.account(g.randElement(g.accounts)),
	}
	switch kind {
	case types.NotificationMention, types.NotificationFavourite, types.NotificationReblog, types.NotificationStatus, types.NotificationPoll, types.NotificationUpdate:
		n.Status = g.GenerateStatus()
	}
	return n
}

func (g *StatusGenerator) newStatus(acct, content string) *types.Status {
	id := g.id()
	url := "https://mastodon.example/@" + acct + "/" + id
	return &types.Status{
		EntityID:        types.EntityID{ID: id},
		URI:             "https://mastodon.example/users/" + acct + "/statuses/" + id,
		URL:             &url,
		CreatedAt:       g.timestamp(),
		Account:         g.account(acct),
		Content:         content,
		Visibility:      g.randElement(g.visibility),
		FavouritesCount: g.popularity(),
		ReblogsCount:    g.popularity() / 3,
	}
}

func (g *StatusGenerator) account(acct string) *types.Account {
	username := acct
	for i, r := range acct {
		if r == '@' {
			username = acct[:i]
			break
		}
	}
	return &types.Account{
		EntityID:    types.EntityID{ID: fmt.Sprintf("%d", 100+len(acct)*7+int(acct[0]))},
		Username:    username,
		Acct:        acct,
		DisplayName: username,
		URL:         "https://mastodon.example/@" + acct,
	}
}

func (g *StatusGenerator) id() string {
	g.nextID += int64(g.rand.Intn(1000) + 1)
	return fmt.Sprintf("%d", g.nextID)
}

// timestamp advances monotonically so that IDs and creation times agree.
func (g *StatusGenerator) timestamp() time.Time {
	g.now = g.now.Add(time.Duration(g.rand.Intn(600)+1) * time.Second)
	return g.now
}

// popularity follows a rough power law: most statuses get little attention.
func (g *StatusGenerator) popularity() int64 {
	r := g.rand.Float64()
	switch {
	case r < 0.7:
		return int64(g.rand.Intn(5))
	case r < 0.95:
		return int64(g.rand.Intn(50) + 5)
	default:
		return int64(g.rand.Intn(2000) + 50)
	}
}

func (g *StatusGenerator) randElement(slice []string) string {
	return slice[g.rand.Intn(len(slice))]
}

// MaxDepth returns the depth of the deepest status in a flat thread, where
// statuses without a parent in the slice have depth 0.
func MaxDepth(statuses []*types.Status) int {
	byID := make(map[string]*types.Status, len(statuses))
	for _, s := range statuses {
		byID[s.ID] = s
	}
	maxDepth := 0
	for _, s := range statuses {
		depth := 0
		seen := map[string]bool{s.ID: true}
		for p := byID[s.ParentID()]; p != nil && !seen[p.ID]; p = byID[p.ParentID()] {
			seen[p.ID] = true
			depth++
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}
