// Package transport posts serialized gateway requests and returns the raw
// reply body.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTransport is matched by every error a Transport returns for network,
// timeout or read failures.
var ErrTransport = errors.New("transport error")

// Transport delivers a serialized document to the gateway and returns the
// raw response body.
type Transport interface {
	Send(ctx context.Context, endpoint string, body []byte, contentType string) ([]byte, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, endpoint string, body []byte, contentType string) ([]byte, error)

func (f Func) Send(ctx context.Context, endpoint string, body []byte, contentType string) ([]byte, error) {
	return f(ctx, endpoint, body, contentType)
}

// HTTPDoer captures the subset of *http.Client the transport relies on, so
// tests can inject fakes instead of making gateway requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const DefaultMaxResponseBytes = 1 << 20

// HTTP posts documents over an HTTPDoer. Any HTTP status is treated as a body
// to parse; only failures to exchange bytes are errors.
type HTTP struct {
	Client           HTTPDoer
	MaxResponseBytes int64
	// OnResponse, when set, observes the status and duration of each
	// completed exchange.
	OnResponse func(status int, elapsed time.Duration)
}

func (t *HTTP) Send(ctx context.Context, endpoint string, body []byte, contentType string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	if strings.TrimSpace(contentType) != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, wrap("post "+redactURL(endpoint), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	limit := t.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	out, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, wrap("read response", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrTransport, limit)
	}
	if t.OnResponse != nil {
		t.OnResponse(resp.StatusCode, time.Since(start))
	}
	return out, nil
}

// Error wraps an underlying network failure. It matches ErrTransport and
// unwraps to the cause, so context.DeadlineExceeded stays detectable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransport }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Timeout()
}

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
	// ProxyURL routes gateway traffic through an HTTP(S) or SOCKS5 proxy.
	ProxyURL string
}

// NewHTTPClient builds the client used against the gateway.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = 45 * time.Second
	}
	total := opts.Timeout
	if total <= 0 {
		total = 45 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = connect
	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", p)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: tr, Timeout: total}, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

var (
	_ Transport = (*HTTP)(nil)
	_ Transport = Func(nil)
)
