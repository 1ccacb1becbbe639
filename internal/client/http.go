package client

import (
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// Doer is the part of the TLS client the fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProxiedClient is a fingerprinted HTTP client bound to at most one proxy.
type ProxiedClient struct {
	tls_client.HttpClient
	ProxyURL string
}

// ProxyRotator hands out proxies round-robin. A nil or empty rotator means
// direct connections.
type ProxyRotator struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

func NewProxyRotator(proxies []string) *ProxyRotator {
	var list []string
	for _, p := range proxies {
		if p != "" {
			list = append(list, p)
		}
	}
	return &ProxyRotator{proxies: list}
}

// Next returns the next proxy URL, or "" when none are configured.
func (r *ProxyRotator) Next() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ""
	}
	p := r.proxies[r.next%len(r.proxies)]
	r.next++
	return p
}

// Remove drops a proxy that the upstream has blocked and returns how many
// are left.
func (r *ProxyRotator) Remove(proxyURL string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if proxyURL != "" {
		for i, p := range r.proxies {
			if p == proxyURL {
				r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
				break
			}
		}
	}
	return len(r.proxies)
}

// Len reports the number of configured proxies.
func (r *ProxyRotator) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

// CreateClient builds a Chrome-fingerprinted client that does not follow
// redirects and gives up after timeout.
func CreateClient(timeout time.Duration, rotator *ProxyRotator) (*ProxiedClient, error) {
	seconds := int(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(seconds),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}

	proxyURL := rotator.Next()
	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, err
	}

	return &ProxiedClient{HttpClient: client, ProxyURL: proxyURL}, nil
}
