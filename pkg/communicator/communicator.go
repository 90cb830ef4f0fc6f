// Package communicator runs the per-request translation pipeline:
// RENAME -> COMBINE -> SERIALIZE -> TRANSMIT -> PARSE -> FILTER -> DONE.
//
// The pipeline is synchronous and single pass. The first failing stage aborts
// it and its error is returned as a *StageError; there are no partial results
// and no retries. A Communicator holds no mutable state and may be shared by
// any number of goroutines.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/pkg/guides"
	"github.com/ruianderson/sts-proxy/pkg/params"
	"github.com/ruianderson/sts-proxy/pkg/translate"
	"github.com/ruianderson/sts-proxy/pkg/transport"
	"github.com/ruianderson/sts-proxy/pkg/xmlcodec"
)

type Stage string

const (
	StageRename    Stage = "RENAME"
	StageCombine   Stage = "COMBINE"
	StageSerialize Stage = "SERIALIZE"
	StageTransmit  Stage = "TRANSMIT"
	StageParse     Stage = "PARSE"
	StageFilter    Stage = "FILTER"
	StageDone      Stage = "DONE"
)

const DefaultContentType = "text/xml"

// Request is one caller invocation.
type Request struct {
	Action string
	// Params are the caller's fields, in the caller's vocabulary.
	Params *params.Map
	// Protocol overrides protocol-level fields for this request only.
	Protocol *params.Map
}

// Observer is notified once per Run with the last stage reached.
type Observer interface {
	ObserveRun(action string, stage Stage, elapsed time.Duration, err error)
}

type Options struct {
	Endpoint    string
	ContentType string
	// Defaults are gateway-wide protocol fields (merchant number, terminal id
	// and similar). They are layered under the guide's own protocol fields,
	// which are layered under Request.Protocol.
	Defaults *params.Map
	Logger   *zap.Logger
	Observer Observer
}

type Communicator struct {
	guides      guides.Lookup
	transport   transport.Transport
	endpoint    string
	contentType string
	defaults    *params.Map
	log         *zap.Logger
	observer    Observer
}

func New(lookup guides.Lookup, tr transport.Transport, opts Options) *Communicator {
	ct := strings.TrimSpace(opts.ContentType)
	if ct == "" {
		ct = DefaultContentType
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Communicator{
		guides:      lookup,
		transport:   tr,
		endpoint:    strings.TrimSpace(opts.Endpoint),
		contentType: ct,
		defaults:    opts.Defaults.Clone(),
		log:         l,
		observer:    opts.Observer,
	}
}

// Run executes the pipeline for req and returns the filtered result.
func (c *Communicator) Run(ctx context.Context, req Request) (out *params.Map, err error) {
	start := time.Now()
	stage := StageRename
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRun(req.Action, stage, time.Since(start), err)
		}
	}()

	g, doc, stage, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	stage = StageTransmit
	c.log.Debug("sending gateway request",
		zap.String("action", req.Action),
		zap.Int("bytes", len(doc)),
	)
	raw, err := c.transport.Send(ctx, c.endpoint, doc, c.contentType)
	if err != nil {
		if !errors.Is(err, transport.ErrTransport) {
			err = &transport.Error{Op: "send", Err: err}
		}
		return nil, c.fail(stage, req.Action, "", err)
	}

	stage = StageParse
	resp, err := xmlcodec.Decode(raw)
	if err != nil {
		return nil, c.fail(stage, req.Action, "", err)
	}

	stage = StageFilter
	out = translate.Filter(g, resp)

	stage = StageDone
	c.log.Debug("gateway exchange complete",
		zap.String("action", req.Action),
		zap.Int("result_fields", out.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Render runs RENAME, COMBINE and SERIALIZE and returns the document Run
// would send for req, without contacting the gateway.
func (c *Communicator) Render(req Request) ([]byte, error) {
	_, doc, _, err := c.prepare(req)
	return doc, err
}

// prepare returns the resolved guide and the serialized request, or the stage
// that failed.
func (c *Communicator) prepare(req Request) (*guides.Guide, []byte, Stage, error) {
	// The guide is resolved once, as part of RENAME, so a concurrent registry
	// swap cannot split one request across two guide versions.
	stage := StageRename
	g, err := c.guides.Lookup(req.Action)
	if err != nil {
		return nil, nil, stage, c.fail(stage, req.Action, "", err)
	}
	renamed := translate.Rename(g, req.Params)

	stage = StageCombine
	combined, err := translate.CombineParams(renamed, c.protocol(g, req.Protocol))
	if err != nil {
		key := ""
		var ce *translate.CollisionError
		if errors.As(err, &ce) {
			key = ce.Key
		}
		return nil, nil, stage, c.fail(stage, req.Action, key, err)
	}

	stage = StageSerialize
	doc, err := xmlcodec.Encode(combined)
	if err != nil {
		return nil, nil, stage, c.fail(stage, req.Action, "", err)
	}
	return g, doc, stage, nil
}

// protocol layers the gateway defaults, the guide's protocol fields and the
// request overrides. A later layer replaces an earlier value in place.
func (c *Communicator) protocol(g *guides.Guide, override *params.Map) *params.Map {
	out := params.New(c.defaults.Len() + g.Protocol.Len() + override.Len())
	out.Merge(c.defaults)
	out.Merge(g.Protocol)
	out.Merge(override)
	return out
}

func (c *Communicator) fail(stage Stage, action, key string, err error) error {
	c.log.Warn("pipeline aborted",
		zap.String("stage", string(stage)),
		zap.String("action", action),
		zap.String("kind", Kind(err)),
		zap.Error(err),
	)
	return &StageError{Stage: stage, Action: action, Key: key, Err: err}
}

// StageError identifies the stage, action and, when relevant, the offending
// key of a pipeline failure.
type StageError struct {
	Stage  Stage
	Action string
	Key    string
	Err    error
}

func (e *StageError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s action %q", e.Stage, e.Action)
	if e.Key != "" {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind names the error kind of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, guides.ErrUnknownAction):
		return "UnknownAction"
	case errors.Is(err, translate.ErrKeyCollision):
		return "KeyCollision"
	case errors.Is(err, xmlcodec.ErrMalformedDocument):
		return "MalformedDocument"
	case errors.Is(err, xmlcodec.ErrUnsupportedKind):
		return "UnsupportedKind"
	case errors.Is(err, xmlcodec.ErrUnsupportedValue), errors.Is(err, xmlcodec.ErrInvalidName):
		return "UnsupportedValue"
	case errors.Is(err, transport.ErrTransport):
		return "TransportError"
	default:
		return "Unknown"
	}
}
