package test_helpers

import (
	"fmt"
	"sync"
	"time"

	mastodon "github.com/jamesprial/go-mastodon-api-wrapper"
)

// MockClientConfig provides configuration for mock clients.
type MockClientConfig struct {
	UserAgent       string
	Timeout         time.Duration
	AccessToken     string
	RateLimitMethod string
	StreamReconnect bool
	Metrics         mastodon.Metrics
}

// DefaultMockClientConfig returns the default configuration for mock clients.
// It uses the wait method so that tests never pace.
func DefaultMockClientConfig() MockClientConfig {
	return MockClientConfig{
		UserAgent:       "test-client/1.0",
		Timeout:         5 * time.Second,
		AccessToken:     "mock_token",
		RateLimitMethod: mastodon.RateLimitWait,
	}
}

// TestClient bundles a Mastodon client with the mock server it talks to.
type TestClient struct {
	*mastodon.Client
	mockServer *MockServer
}

// NewTestClient creates a client connected to a fresh mock server.
func NewTestClient(config *MockClientConfig) *TestClient {
	if config == nil {
		c := DefaultMockClientConfig()
		config = &c
	}
	server := NewMockServer()

	client, err := mastodon.NewClient(&mastodon.Config{
		BaseURL:         server.URL(),
		AccessToken:     config.AccessToken,
		UserAgent:       config.UserAgent,
		Timeout:         config.Timeout,
		RateLimitMethod: config.RateLimitMethod,
		StreamingURL:    server.URL(),
		StreamReconnect: config.StreamReconnect,
		Metrics:         config.Metrics,
	})
	if err != nil {
		server.Close()
		panic(fmt.Sprintf("failed to create mastodon client: %v", err))
	}
	return &TestClient{Client: client, mockServer: server}
}

// MockServer returns the underlying mock server.
func (tc *TestClient) MockServer() *MockServer {
	return tc.mockServer
}

// Close closes the mock server.
func (tc *TestClient) Close() {
	tc.mockServer.Close()
}

// Reset clears the recorded requests.
func (tc *TestClient) Reset() {
	tc.mockServer.ClearLog()
}

// ConcurrentTestHelper runs the same test against several clients at once.
type ConcurrentTestHelper struct {
	clients []*TestClient
	mu      sync.RWMutex
}

// NewConcurrentTestHelper creates clientCount independent test clients.
func NewConcurrentTestHelper(clientCount int) *ConcurrentTestHelper {
	helper := &ConcurrentTestHelper{clients: make([]*TestClient, clientCount)}
	for i := range clientCount {
		helper.clients[i] = NewTestClient(nil)
	}
	return helper
}

// GetAllClients returns all clients.
func (cth *ConcurrentTestHelper) GetAllClients() []*TestClient {
	cth.mu.RLock()
	defer cth.mu.RUnlock()
	return append([]*TestClient(nil), cth.clients...)
}

// Close closes all clients.
func (cth *ConcurrentTestHelper) Close() {
	cth.mu.Lock()
	defer cth.mu.Unlock()
	for _, client := range cth.clients {
		client.Close()
	}
}

// RunConcurrentTest runs testFunc concurrently once per client and returns
// the per-client errors.
func (cth *ConcurrentTestHelper) RunConcurrentTest(testFunc func(*TestClient) error) []error {
	clients := cth.GetAllClients()
	errs := make([]error, len(clients))

	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(index int, tc *TestClient) {
			defer wg.Done()
			errs[index] = testFunc(tc)
		}(i, client)
	}
	wg.Wait()
	return errs
}
