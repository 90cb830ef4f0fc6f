// Package transporttest provides fake gateways and HTTP doers for tests.
package transporttest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/ruianderson/sts-proxy/pkg/transport"
)

// FakeDoer implements transport.HTTPDoer so callers can run tests without
// making outbound HTTP requests.
type FakeDoer struct {
	t         testing.TB
	mu        sync.Mutex
	responses []*http.Response
	errs      []error
	requests  []*http.Request
	bodies    []string
}

// NewFakeDoer returns a FakeDoer seeded with the responses that should be
// returned for each Do call.
func NewFakeDoer(t testing.TB, responses ...*http.Response) *FakeDoer {
	return &FakeDoer{
		t:         t,
		responses: append([]*http.Response(nil), responses...),
	}
}

// FailWith queues an error to be returned by the next Do call instead of a
// response.
func (f *FakeDoer) FailWith(err error) *FakeDoer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	return f
}

// Do records the request and returns the next queued error or response.
func (f *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	f.bodies = append(f.bodies, body)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.responses) == 0 {
		f.t.Fatalf("fake http client has no responses left for request %s %s", req.Method, req.URL.String())
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// Requests returns the HTTP requests captured so far.
func (f *FakeDoer) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// Bodies returns the request bodies captured so far.
func (f *FakeDoer) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

// NewStringResponse builds a minimal http.Response with the provided status
// code and body string.
func NewStringResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// Call is one recorded Gateway.Send invocation.
type Call struct {
	Endpoint    string
	Body        string
	ContentType string
}

// Gateway is a transport.Transport that answers every Send with a canned
// body (or error) and records what it was sent.
type Gateway struct {
	mu    sync.Mutex
	Reply string
	Err   error
	calls []Call
}

func NewGateway(reply string) *Gateway {
	return &Gateway{Reply: reply}
}

func (g *Gateway) Send(_ context.Context, endpoint string, body []byte, contentType string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Endpoint: endpoint, Body: string(body), ContentType: contentType})
	if g.Err != nil {
		return nil, g.Err
	}
	return []byte(g.Reply), nil
}

func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

var (
	_ transport.HTTPDoer  = (*FakeDoer)(nil)
	_ transport.Transport = (*Gateway)(nil)
)
