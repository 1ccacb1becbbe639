package headers

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	http "github.com/bogdanfinn/fhttp"
)

type platform struct {
	uaToken   string
	chName    string
	mobileCHU string
}

// Profile is one consistent desktop browser identity. A profile is reused
// across requests so the header set matches the TLS fingerprint for a while
// instead of changing on every call.
type Profile struct {
	ua        string
	secCHUA   string
	platform  platform
	acceptIdx int
	langIdx   int
	encIdx    int
	cacheIdx  int
	dnt       bool
}

var (
	platforms = []platform{
		{uaToken: "Windows NT 10.0; Win64; x64", chName: "Windows", mobileCHU: "?0"},
		{uaToken: "Macintosh; Intel Mac OS X 10_15_7", chName: "macOS", mobileCHU: "?0"},
		{uaToken: "X11; Linux x86_64", chName: "Linux", mobileCHU: "?0"},
	}
	acceptOpts = []string{
		"*/*",
		"application/json, text/plain, */*",
		"application/json, text/javascript, */*; q=0.01",
	}
	encOpts = []string{
		"gzip, deflate, br",
		"gzip, deflate, br, zstd",
	}
	langOpts = []string{
		"en-CA,en;q=0.9",
		"en-US,en;q=0.9",
		"en-CA,en-US;q=0.9,en;q=0.8",
		"en-GB,en;q=0.9,en-US;q=0.8",
		"fr-CA,fr;q=0.9,en-CA;q=0.8,en;q=0.7",
		"zh-CN,zh;q=0.9,en-CA;q=0.8,en;q=0.7",
	}
	cacheOpts = []string{
		"no-cache",
		"max-age=0",
		"",
	}

	headerOrder = []string{
		"authority",
		"accept",
		"accept-language",
		"accept-encoding",
		"cache-control",
		"dnt",
		"referer",
		"sec-ch-ua",
		"sec-ch-ua-mobile",
		"sec-ch-ua-platform",
		"sec-fetch-dest",
		"sec-fetch-mode",
		"sec-fetch-site",
		"user-agent",
		"x-requested-with",
	}
)

// Pool hands out header sets built from a pool of pre-generated profiles.
type Pool struct {
	mu      sync.Mutex
	pool    *sync.Pool
	referer string
}

// NewPool creates a pool whose headers point at referer and pre-generates
// warm profiles.
func NewPool(referer string, warm int) *Pool {
	p := &Pool{referer: referer, pool: newProfilePool()}
	p.Warm(warm)
	return p
}

func newProfilePool() *sync.Pool {
	return &sync.Pool{New: func() interface{} { return generateProfile() }}
}

func chromeVersion() (major int, full string) {
	major = rand.Intn(12) + 120
	return major, fmt.Sprintf("%d.0.%d.%d", major, rand.Intn(900)+6000, rand.Intn(200))
}

func generateUA(pl platform, full string) string {
	return fmt.Sprintf(
		"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		pl.uaToken, full,
	)
}

func generateSecCHUA(major int) string {
	return fmt.Sprintf(
		`"Not_A Brand";v="8", "Chromium";v="%d", "Google Chrome";v="%d"`,
		major, major,
	)
}

func generateProfile() Profile {
	pl := platforms[rand.Intn(len(platforms))]
	major, full := chromeVersion()

	return Profile{
		ua:        generateUA(pl, full),
		secCHUA:   generateSecCHUA(major),
		platform:  pl,
		acceptIdx: rand.Intn(len(acceptOpts)),
		langIdx:   rand.Intn(len(langOpts)),
		encIdx:    rand.Intn(len(encOpts)),
		cacheIdx:  rand.Intn(len(cacheOpts)),
		dnt:       rand.Float64() < 0.5,
	}
}

func (p *Pool) get() Profile {
	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()
	return pool.Get().(Profile)
}

func (p *Pool) put(profile Profile) {
	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()
	pool.Put(profile)
}

// Build returns a header set for a same-origin XHR to the pickup endpoint.
func (p *Pool) Build(authority string) http.Header {
	profile := p.get()
	defer p.put(profile)

	h := http.Header{}
	if authority != "" {
		h.Set("authority", authority)
	}
	h.Set("accept", acceptOpts[profile.acceptIdx])
	h.Set("accept-language", langOpts[profile.langIdx])
	h.Set("accept-encoding", encOpts[profile.encIdx])
	if cc := cacheOpts[profile.cacheIdx]; cc != "" {
		h.Set("cache-control", cc)
	}
	if profile.dnt {
		h.Set("dnt", "1")
	}
	if p.referer != "" {
		h.Set("referer", p.referer)
	}
	h.Set("sec-ch-ua", profile.secCHUA)
	h.Set("sec-ch-ua-mobile", profile.platform.mobileCHU)
	h.Set("sec-ch-ua-platform", `"`+profile.platform.chName+`"`)
	h.Set("sec-fetch-dest", "empty")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-site", "same-origin")
	h.Set("user-agent", profile.ua)
	if strings.HasPrefix(acceptOpts[profile.acceptIdx], "application/json") {
		h.Set("x-requested-with", "XMLHttpRequest")
	}

	h[http.HeaderOrderKey] = headerOrder

	return h
}

// Warm pre-generates count profiles.
func (p *Pool) Warm(count int) {
	profiles := make([]Profile, count)
	for i := 0; i < count; i++ {
		profiles[i] = generateProfile()
	}
	for _, profile := range profiles {
		p.put(profile)
	}
}

// Reset drops every pooled profile, so the next requests present fresh
// identities. Used after the upstream starts rejecting requests.
func (p *Pool) Reset() {
	p.mu.Lock()
	p.pool = newProfilePool()
	p.mu.Unlock()
}
