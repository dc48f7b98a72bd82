// Package client builds HTTP clients for the bot's outbound API calls.
package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// Config holds common client configuration.
type Config struct {
	// Token is sent as "Authorization: <TokenType> <Token>". TokenType defaults to Bearer.
	Token     string
	TokenType string

	Timeout time.Duration

	// Cache enables an RFC 7234 response cache. Responses are only reused while fresh.
	Cache bool
	// CacheDir persists the cache on disk across restarts; empty keeps it in memory.
	CacheDir string

	// Transport overrides the base round tripper.
	Transport http.RoundTripper
}

// NewHTTPClient creates a traced client that authenticates every request with a static token.
// The cache sits below the auth layer so cached responses are keyed without credentials.
func NewHTTPClient(cfg Config) *http.Client {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if cfg.Cache {
		transport = &httpcache.Transport{
			Transport:           transport,
			Cache:               newCache(cfg.CacheDir),
			MarkCachedResponses: true,
		}
	}

	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: cfg.TokenType}),
			Base:   transport,
		}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   cfg.Timeout,
	}
}

func newCache(dir string) httpcache.Cache {
	if dir == "" {
		return httpcache.NewMemoryCache()
	}
	// Use disk-based cache for persistence across restarts
	return diskcache.New(dir)
}

// FromCache reports whether resp was served from the response cache.
func FromCache(resp *http.Response) bool {
	return resp.Header.Get(httpcache.XFromCache) != ""
}
