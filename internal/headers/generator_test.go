package headers

import (
	"strings"
	"testing"

	http "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSetsBrowserHeaders(t *testing.T) {
	p := NewPool("https://www.apple.com/ca/shop/buy-iphone", 5)

	h := p.Build("www.apple.com")

	assert.Equal(t, "www.apple.com", h.Get("authority"))
	assert.Equal(t, "https://www.apple.com/ca/shop/buy-iphone", h.Get("referer"))
	assert.Equal(t, "same-origin", h.Get("sec-fetch-site"))
	assert.Equal(t, "cors", h.Get("sec-fetch-mode"))
	assert.Equal(t, "?0", h.Get("sec-ch-ua-mobile"))
	assert.True(t, strings.HasPrefix(h.Get("user-agent"), "Mozilla/5.0 ("))
	assert.Contains(t, h.Get("user-agent"), "Chrome/")
	require.NotEmpty(t, h[http.HeaderOrderKey])
	assert.Equal(t, "authority", h[http.HeaderOrderKey][0])
}

func TestSecCHUAMatchesUserAgentMajor(t *testing.T) {
	for i := 0; i < 50; i++ {
		profile := generateProfile()
		idx := strings.Index(profile.ua, "Chrome/")
		require.NotEqual(t, -1, idx)
		major := strings.SplitN(profile.ua[idx+len("Chrome/"):], ".", 2)[0]
		assert.Contains(t, profile.secCHUA, `"Chromium";v="`+major+`"`)
	}
}

func TestBuildOmitsEmptyAuthority(t *testing.T) {
	p := NewPool("", 0)

	h := p.Build("")

	assert.Empty(t, h.Get("authority"))
	assert.Empty(t, h.Get("referer"))
}

func TestResetKeepsPoolUsable(t *testing.T) {
	p := NewPool("https://example.com", 2)
	p.Reset()

	h := p.Build("example.com")

	assert.NotEmpty(t, h.Get("user-agent"))
}
