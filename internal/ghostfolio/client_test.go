package ghostfolio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(baseURL, opts...)
	require.NoError(t, err)
	c.tokens = newTokenCache()
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient("http://localhost:3333")
	assert.Error(t, err)

	_, err = NewClient("", WithBearerToken("jwt"))
	assert.Error(t, err)
}

func TestBearerTokenPassedThrough(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"holdings": map[string]any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("user-jwt"))
	payload, err := c.PortfolioDetails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-jwt", gotAuth)
	assert.Contains(t, payload, "holdings")
}

func TestAnonymousAuthExchangeAndCache(t *testing.T) {
	var authCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case authEndpoint:
			atomic.AddInt32(&authCalls, 1)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "secret", body["accessToken"])
			_ = json.NewEncoder(w).Encode(map[string]string{"authToken": "jwt-1"})
		default:
			assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{"activities": []any{}})
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithAccessToken("secret"))
	_, err := c.Orders(context.Background(), "")
	require.NoError(t, err)
	_, err = c.Orders(context.Background(), "")
	require.NoError(t, err)

	// Second call reuses the cached token.
	assert.Equal(t, int32(1), atomic.LoadInt32(&authCalls))
}

func TestUnauthorizedTriggersOneRefresh(t *testing.T) {
	var dataCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == authEndpoint {
			_ = json.NewEncoder(w).Encode(map[string]string{"authToken": "jwt-fresh"})
			return
		}
		if atomic.AddInt32(&dataCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer jwt-fresh", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"summary": map[string]any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithAccessToken("secret"))
	c.tokens.Put(srv.URL, "jwt-stale")

	payload, err := c.PortfolioDetails(context.Background())
	require.NoError(t, err)
	assert.Contains(t, payload, "summary")
	assert.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
}

func TestSecondUnauthorizedFailsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == authEndpoint {
			_ = json.NewEncoder(w).Encode(map[string]string{"authToken": "jwt"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithAccessToken("secret"))
	_, err := c.PortfolioDetails(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeAuthFailed, ErrorCode(err))
	assert.Equal(t, http.StatusUnauthorized, ErrorStatus(err))
}

func TestAuthEndpointRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithAccessToken("wrong"))
	_, err := c.PortfolioDetails(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeAuthFailed, ErrorCode(err))
}

func TestInvalidDateRangeRejectedLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an invalid range")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"))
	_, err := c.Orders(context.Background(), "quarterly")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidTimePeriod, ErrorCode(err))
}

func TestDateRangeForwardedAsQuery(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.URL.Query().Get("range")
		_ = json.NewEncoder(w).Encode(map[string]any{"activities": []any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"))
	_, err := c.Orders(context.Background(), "ytd")
	require.NoError(t, err)
	assert.Equal(t, "ytd", gotRange)
}

func TestPortfolioPerformanceEndpoint(t *testing.T) {
	var gotPath, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		_ = json.NewEncoder(w).Encode(map[string]any{"performance": map[string]any{}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"))
	payload, err := c.PortfolioPerformance(context.Background(), "1y")
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/portfolio/performance", gotPath)
	assert.Equal(t, "1y", gotRange)
	assert.Contains(t, payload, "performance")

	_, err = c.PortfolioPerformance(context.Background(), "decade")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidTimePeriod, ErrorCode(err))
}

func TestTimeoutMapsToAPITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"), WithTimeout(20*time.Millisecond))
	_, err := c.PortfolioDetails(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeAPITimeout, ErrorCode(err))
}

func TestServerErrorMapsToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"))
	_, err := c.PortfolioDetails(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeAPIError, ErrorCode(err))
	assert.Equal(t, http.StatusBadGateway, ErrorStatus(err))
}

func TestNonJSONBodyMapsToAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithBearerToken("jwt"))
	_, err := c.PortfolioDetails(context.Background())
	require.Error(t, err)
	assert.Equal(t, CodeAPIError, ErrorCode(err))
}

func TestTokenCacheExpiry(t *testing.T) {
	tc := newTokenCache()
	current := time.Unix(1000, 0)
	tc.now = func() time.Time { return current }

	tc.Put("http://gf", "jwt")
	token, ok := tc.Get("http://gf")
	require.True(t, ok)
	assert.Equal(t, "jwt", token)

	current = current.Add(tokenTTL + time.Second)
	_, ok = tc.Get("http://gf")
	assert.False(t, ok)
}

func TestTokenCacheClear(t *testing.T) {
	tc := newTokenCache()
	tc.Put("http://a", "jwt-a")
	tc.Put("http://b", "jwt-b")

	tc.Clear("http://a")
	_, ok := tc.Get("http://a")
	assert.False(t, ok)
	_, ok = tc.Get("http://b")
	assert.True(t, ok)

	tc.Clear("")
	_, ok = tc.Get("http://b")
	assert.False(t, ok)
}
