package helpers

import (
	"math/rand"
	"strings"
)

// Fuzzer provides fuzzing utilities for adversarial testing
type Fuzzer struct {
	rand *rand.Rand
}

// NewFuzzer creates a new fuzzer with the given seed
func NewFuzzer(seed int64) *Fuzzer {
	return &Fuzzer{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// FuzzHashtag generates hashtag names, valid and invalid.
func (f *Fuzzer) FuzzHashtag() []string {
	inputs := []string{
		// Valid
		"golang",
		"#golang",
		"Go_Lang",
		"日本語",
		"café",
		"2024",

		// Invalid
		"",
		"#",
		"##golang",
		"go lang",
		"go-lang",
		"go.lang",
		"go/lang",
		"go?lang=1",
		"go#lang",
		"go\nlang",
		"go\x00lang",
		"<script>",
	}
	inputs = append(inputs, f.GeneratePathTraversals()...)
	inputs = append(inputs, f.GenerateControlCharString()...)
	for i := 0; i < 10; i++ {
		inputs = append(inputs, f.GenerateRandomString(f.rand.Intn(30)+1, true))
	}
	return inputs
}

// FuzzAcct generates account handles, valid and invalid.
func (f *Fuzzer) FuzzAcct() []string {
	inputs := []string{
		// Valid
		"alice",
		"@alice",
		"alice@mastodon.social",
		"@alice@mastodon.social",
		"a_b.c@example.co.uk",
		"alice@localhost.test:3000",

		// Invalid
		"",
		"@",
		"@@alice",
		"alice@",
		"@alice@",
		"alice@@mastodon.social",
		"alice@mastodon",
		"alice@-bad-.com",
		".alice",
		"alice.",
		"ali ce",
		"alice@mastodon.social/extra",
		"alice@mastodon.social?x=1",
		"alice\r\nX-Injected: 1",
	}
	inputs = append(inputs, f.GenerateUnicodeAttacks()...)
	inputs = append(inputs, f.GeneratePathTraversals()...)
	return inputs
}

// FuzzID generates entity IDs, valid and invalid.
func (f *Fuzzer) FuzzID() []string {
	inputs := []string{
		// Valid
		"1",
		"109372843234",
		"AbC_-9",
		strings.Repeat("9", 64),

		// Invalid
		"",
		" ",
		"1 2",
		"1/2",
		"1?x=2",
		"1#frag",
		"%2e%2e",
		strings.Repeat("9", 65),
	}
	inputs = append(inputs, f.GeneratePathTraversals()...)
	inputs = append(inputs, f.GenerateSQLInjections()...)
	inputs = append(inputs, f.GenerateUnicodeAttacks()...)
	return inputs
}

// FuzzPaginationLimit generates page sizes.
func (f *Fuzzer) FuzzPaginationLimit() []int {
	limits := []int{-1 << 31, -100, -1, 0, 1, 20, 40, 41, 80, 81, 1000, 1<<31 - 1}
	for i := 0; i < 10; i++ {
		limits = append(limits, f.rand.Intn(200)-50)
	}
	return limits
}

// FuzzUserAgent generates user agent strings that should be rejected.
func (f *Fuzzer) FuzzUserAgent() []string {
	return []string{
		"agent\r\nX-Injected: true",
		"agent\nX-Injected: true",
		"agent\rX-Injected: true",
		strings.Repeat("a", 1024),
	}
}

// GenerateMalformedSSE generates event stream bodies that violate the
// framing or carry undecodable payloads.
func (f *Fuzzer) GenerateMalformedSSE() map[string]string {
	return map[string]string{
		"line without separator":  "event update\ndata: {}\n\n",
		"missing data":            "event: update\n\n",
		"missing event":           "data: {}\n\n",
		"bad json":                "event: update\ndata: {\"id\":\n\n",
		"bad utf8":                "event: update\ndata: \"\xff\xfe\"\n\n",
		"colon without space":     "event:update\ndata:{}\n\n",
		"empty key":               ": x\n: y\n\n: z\nevent: update\n\n",
		"binary garbage":          "\x00\x01\x02\x03\n\n",
		"json bomb":               "event: update\ndata: " + strings.Repeat("[", 20000) + strings.Repeat("]", 19999) + "\n\n",
		"truncated":               "event: update\ndata: {\"id\":\"1\"}",
		"data only continuation":  "data: 1\ndata: 2\n\n",
		"crlf missing data":       "event: update\r\n\r\n",
		"delete with object data": "event: delete\ndata: {\"id\":{}}\n\n",
	}
}

// GenerateMaliciousRateHeaders creates pathological rate limit header combinations
func (f *Fuzzer) GenerateMaliciousRateHeaders() map[string]map[string]string {
	return map[string]map[string]string{
		"nan_remaining": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "NaN",
			"X-RateLimit-Reset":     "2030-01-01T00:00:00Z",
		},
		"float_remaining": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "1.5",
			"X-RateLimit-Reset":     "2030-01-01T00:00:00Z",
		},
		"overflow_limit": {
			"X-RateLimit-Limit":     "99999999999999999999999",
			"X-RateLimit-Remaining": "1",
			"X-RateLimit-Reset":     "2030-01-01T00:00:00Z",
		},
		"garbage_reset": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "1",
			"X-RateLimit-Reset":     "tomorrow",
		},
		"infinite_reset": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "1",
			"X-RateLimit-Reset":     "+Inf",
		},
		"bad_date": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "1",
			"X-RateLimit-Reset":     "2030-01-01T00:00:00Z",
			"Date":                  "yesterday-ish",
		},
		"missing_limit": {
			"X-RateLimit-Remaining": "1",
			"X-RateLimit-Reset":     "2030-01-01T00:00:00Z",
		},
	}
}

// GenerateExtremeRateHeaders creates header sets that parse but describe
// absurd windows. Sleeps derived from them must stay bounded.
func (f *Fuzzer) GenerateExtremeRateHeaders() map[string]map[string]string {
	return map[string]map[string]string{
		"far_future_reset": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "2999-01-01T00:00:00Z",
		},
		"epoch_seconds_huge": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1e15",
		},
		"negative_remaining": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "-5",
			"X-RateLimit-Reset":     "2999-01-01T00:00:00Z",
		},
		"zero_limit": {
			"X-RateLimit-Limit":     "0",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "2999-01-01T00:00:00Z",
		},
		"past_reset": {
			"X-RateLimit-Limit":     "300",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1970-01-01T00:00:00Z",
		},
	}
}

// GenerateRandomString generates a random string of given length
func (f *Fuzzer) GenerateRandomString(length int, includeSpecial bool) string {
	const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const special = "!@#$%^&*()_+-=[]{}|;':\",./<>?`~ "

	charset := alphanumeric
	if includeSpecial {
		charset += special
	}

	b := make([]byte, length)
	for i := range b {
		b[i] = charset[f.rand.Intn(len(charset))]
	}
	return string(b)
}

// GenerateControlCharString generates strings with control characters
func (f *Fuzzer) GenerateControlCharString() []string {
	return []string{
		"test\x00null",
		"test\x01start",
		"test\x1bescape",
		"test\x7fdelete",
		"test\ttab",
		"test\r\ncrlf",
	}
}

// GenerateUnicodeAttacks generates Unicode-based attack strings
func (f *Fuzzer) GenerateUnicodeAttacks() []string {
	return []string{
		"test\u200bzero",       // zero-width space
		"test\ufeffbom",        // byte order mark
		"test\u202ertl",        // right-to-left override
		"\uff41\uff4c\uff49", // fullwidth "ali"
		"\u0430lice",           // Cyrillic 'a'
		"test\U0001F4A9emoji",  // astral plane
		"test\xc3\x28invalid", // invalid UTF-8
	}
}

// GenerateSQLInjections generates SQL injection attempts
func (f *Fuzzer) GenerateSQLInjections() []string {
	return []string{
		"1' OR '1'='1",
		"1; DROP TABLE statuses--",
		"1 UNION SELECT * FROM users",
	}
}

// GeneratePathTraversals generates path traversal attempts
func (f *Fuzzer) GeneratePathTraversals() []string {
	return []string{
		"../admin",
		"..%2fadmin",
		"....//admin",
		"/etc/passwd",
		"..\\windows",
	}
}
