package ghostfolio

import (
	"sync"
	"time"
)

const tokenTTL = 60 * time.Second

// tokenCache holds bearer tokens keyed by base URL with a short TTL, so
// concurrent turns against the same Ghostfolio instance share one
// anonymous-auth exchange instead of racing to re-authenticate.
type tokenCache struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	now     func() time.Time
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

var sharedTokenCache = newTokenCache()

func newTokenCache() *tokenCache {
	return &tokenCache{
		entries: map[string]tokenEntry{},
		now:     time.Now,
	}
}

func (tc *tokenCache) Get(baseURL string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	e, ok := tc.entries[baseURL]
	if !ok || tc.now().After(e.expiresAt) {
		delete(tc.entries, baseURL)
		return "", false
	}
	return e.token, true
}

func (tc *tokenCache) Put(baseURL, token string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries[baseURL] = tokenEntry{token: token, expiresAt: tc.now().Add(tokenTTL)}
}

func (tc *tokenCache) Clear(baseURL string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if baseURL == "" {
		tc.entries = map[string]tokenEntry{}
		return
	}
	delete(tc.entries, baseURL)
}
