package internal

import (
	"net/http"
	"net/url"
	"strings"
)

// PageCursor locates an adjacent page advertised in a Link header.
type PageCursor struct {
	// Path is the endpoint path relative to the API base, e.g. "api/v1/timelines/home".
	Path string
	// Params holds the cursor query parameters (max_id, min_id, since_id, limit, ...).
	Params Params
}

// Links holds the cursors parsed from a Link header.
type Links struct {
	Next *PageCursor
	Prev *PageCursor
}

// Parser handles parsing of Mastodon response metadata.
type Parser struct {
	base *url.URL
}

// NewParser creates a new parser resolving link targets relative to base.
func NewParser(base *url.URL) *Parser {
	return &Parser{base: base}
}

// ParseLinks extracts rel="next" and rel="prev" cursors from the response headers.
func (p *Parser) ParseLinks(h http.Header) Links {
	var links Links
	for _, value := range h.Values("Link") {
		for _, entry := range splitLinkHeader(value) {
			target, rels := parseLinkEntry(entry)
			if target == "" {
				continue
			}
			cursor := p.cursorFor(target)
			if cursor == nil {
				continue
			}
			for _, rel := range rels {
				switch rel {
				case "next":
					links.Next = cursor
				case "prev", "previous":
					links.Prev = cursor
				}
			}
		}
	}
	return links
}

func (p *Parser) cursorFor(target string) *PageCursor {
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}

	path := strings.TrimPrefix(u.Path, "/")
	if p.base != nil {
		if basePath := strings.TrimPrefix(p.base.Path, "/"); basePath != "" {
			path = strings.TrimPrefix(path, basePath)
		}
	}

	params := Params{}
	for k, vs := range u.Query() {
		switch {
		case strings.HasSuffix(k, "[]"):
			params[k] = append([]string{}, vs...)
		case len(vs) > 0:
			params[k] = vs[0]
		}
	}
	return &PageCursor{Path: path, Params: params}
}

// splitLinkHeader splits on commas that are outside angle brackets.
func splitLinkHeader(v string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range v {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, v[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, v[start:])
}

func parseLinkEntry(entry string) (target string, rels []string) {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "<") {
		return "", nil
	}
	end := strings.Index(entry, ">")
	if end < 0 {
		return "", nil
	}
	target = entry[1:end]

	for _, attr := range strings.Split(entry[end+1:], ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(attr), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"`)
		rels = append(rels, strings.Fields(val)...)
	}
	return target, rels
}
