package cei

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cei-crawler/internal/components/assert"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

const DefaultPoolSize = 30

// ErrPoolClosed is returned by round trips through a closed pool and by a
// second Close.
var ErrPoolClosed = errors.New("connection pool closed")

type PoolOptions struct {
	// Size bounds the concurrent connections to the portal, it defaults to
	// DefaultPoolSize.
	Size int
	// CloudflareBypass mimics a browser TLS fingerprint, the portal sits
	// behind a bot filter that drops Go's default handshake.
	CloudflareBypass bool
	IdleTimeout      time.Duration
}

// Pool is the set of transport connections shared by every Session of the
// process. It is created once, handed to sessions by reference and closed
// exactly once after all of them are done. Closing a Session never closes
// the Pool.
type Pool struct {
	transport *http.Transport
	roundTrip http.RoundTripper

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewPool(opts PoolOptions) *Pool {
	if opts.Size == 0 {
		opts.Size = DefaultPoolSize
	}
	assert.Positive("pool size", opts.Size)
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 90 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = opts.Size
	transport.MaxIdleConns = opts.Size
	transport.MaxIdleConnsPerHost = opts.Size
	transport.IdleConnTimeout = opts.IdleTimeout

	var roundTrip http.RoundTripper = transport
	if opts.CloudflareBypass {
		roundTrip = cloudflarebp.AddCloudFlareByPass(transport)
	}

	return &Pool{transport: transport, roundTrip: roundTrip}
}

func (p *Pool) RoundTrip(req *http.Request) (*http.Response, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	return p.roundTrip.RoundTrip(req)
}

// Close drops every idle connection and fails all later round trips of
// every session using the pool.
func (p *Pool) Close() error {
	err := ErrPoolClosed
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.transport.CloseIdleConnections()
		err = nil
	})
	return err
}
