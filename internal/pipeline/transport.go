package pipeline

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Default TCP tuning lifted from olla's sherpa.NewService transport,
// which disables Nagle's algorithm for token-by-token streaming latency
// and caps idle connections sanely for a fan-out-to-few-upstreams proxy.
const (
	defaultKeepAlive           = 60 * time.Second
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 5
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
)

// NewTransport builds the shared http.Transport used by both pipelines.
// connectTimeout bounds TCP connect only; the overall per-attempt timeout
// is enforced by the caller via context.
func NewTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: defaultKeepAlive,
			}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
	}
}
