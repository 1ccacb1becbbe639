package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourneighborhoodchef/pickupwatch/internal/headers"
)

const pickupPath = "/shop/retail/pickup-message"

// PickupURL builds the pickup-message request URL for one part and location.
func PickupURL(baseURL, part, location string) (string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}
	base.Path += pickupPath
	base.RawQuery = "pl=true" +
		"&parts.0=" + url.QueryEscape(part) +
		"&location=" + url.QueryEscape(location)
	return base.String(), nil
}

// PickupFetcher issues the availability request. It is not safe for
// concurrent use; the poll loop owns it.
type PickupFetcher struct {
	doer      Doer
	headers   *headers.Pool
	url       string
	authority string
	log       logrus.FieldLogger

	// rotate, when set, replaces doer after the upstream blocks a request.
	rotate     func() (Doer, error)
	prevStatus int
}

// FetcherOption customises a PickupFetcher.
type FetcherOption func(*PickupFetcher)

// WithRotation makes the fetcher build a fresh client after a blocked
// response, typically to move to the next proxy.
func WithRotation(rotate func() (Doer, error)) FetcherOption {
	return func(f *PickupFetcher) { f.rotate = rotate }
}

func NewPickupFetcher(doer Doer, pool *headers.Pool, baseURL, part, location string, log logrus.FieldLogger, opts ...FetcherOption) (*PickupFetcher, error) {
	u, err := PickupURL(baseURL, part, location)
	if err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(u)

	f := &PickupFetcher{
		doer:      doer,
		headers:   pool,
		url:       u,
		authority: parsed.Host,
		log:       log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// URL is the request URL the fetcher calls.
func (f *PickupFetcher) URL() string { return f.url }

// Fetch performs one GET and returns the raw body. 200 and 302 are the only
// accepted statuses.
func (f *PickupFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &TransportError{URL: f.url, Err: err}
	}
	req.Header = f.headers.Build(f.authority)

	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, &TransportError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}

	prev := f.prevStatus
	f.prevStatus = resp.StatusCode

	switch resp.StatusCode {
	case http.StatusOK, http.StatusFound:
		return body, nil
	case http.StatusForbidden, http.StatusTooManyRequests, 541:
		f.onBlocked(prev, resp.StatusCode)
	}
	return nil, &FetchError{StatusCode: resp.StatusCode, Body: sample(body)}
}

func (f *PickupFetcher) onBlocked(prev, status int) {
	if prev == http.StatusOK {
		f.log.WithField("status", status).Warn("Blocked after a previous 200, regenerating header profiles")
		f.headers.Reset()
	}
	if f.rotate == nil {
		return
	}
	doer, err := f.rotate()
	if err != nil {
		f.log.WithError(err).Warn("Could not rotate client")
		return
	}
	f.doer = doer
}
