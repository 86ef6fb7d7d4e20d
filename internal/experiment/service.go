package experiment

import (
	"context"
	"errors"
	"time"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/rig"
	"github.com/san-kum/seesaw/internal/sampling"
)

type Op int

const (
	OpStatus Op = iota
	OpGetTuning
	OpSetTuning
	OpStart
	OpSamples
)

func (o Op) String() string {
	return [...]string{"status", "get-tuning", "set-tuning", "start", "samples"}[o]
}

// Request is an external read or write, answered by the loop between
// control steps.
type Request struct {
	Op    Op
	Patch config.Patch

	ctx   context.Context
	reply chan Response
}

type Response struct {
	Status  Status
	Tuning  config.Tuning
	Samples []sampling.Sample
	Err     error
}

// Run drives the loop at the rig's control period until ctx is cancelled.
// Requests are only taken from the channel while the loop is idle; during a
// run they wait. A nil channel means no external service is attached.
func (l *Loop) Run(ctx context.Context, requests <-chan Request) error {
	period := uint32(l.rig.PeriodMs)
	clock := l.hw.Clock
	next := clock.Millis()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t0 := time.Now()
		l.Step()
		l.timing.Collect(time.Since(t0))

		l.serve(requests)

		next += period
		wait := int32(next - clock.Millis())
		switch {
		case wait > 0:
			clock.Sleep(time.Duration(wait) * time.Millisecond)
		case wait < -int32(period):
			// overran by more than a period; resynchronize instead of bursting
			next = clock.Millis()
		}
	}
}

func (l *Loop) serve(requests <-chan Request) {
	for l.ServiceEnabled() {
		select {
		case req := <-requests:
			l.Serve(req)
		default:
			return
		}
	}
}

// Serve answers one request taken from the channel handed to Run. A request
// whose caller has already given up is not applied and is answered with the
// caller's error, so what the caller sees always matches what the loop did.
// It must run on the loop's goroutine.
func (l *Loop) Serve(req Request) {
	var resp Response
	if req.ctx != nil && req.ctx.Err() != nil {
		resp = Response{Status: l.Status(), Err: callerErr(req.ctx.Err())}
	} else {
		resp = l.Handle(req)
	}
	if req.reply != nil {
		req.reply <- resp
	}
}

func callerErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrServicePaused
	}
	return err
}

// Handle answers one request. It must run on the loop's goroutine.
func (l *Loop) Handle(req Request) Response {
	var resp Response
	switch req.Op {
	case OpStatus:
	case OpGetTuning:
		resp.Tuning = l.tuning
	case OpSetTuning:
		resp.Tuning = l.ApplyTuning(req.Patch)
	case OpStart:
		resp.Err = l.Start()
	case OpSamples:
		resp.Samples, resp.Err = l.Samples()
	}
	resp.Status = l.Status()
	return resp
}

// Client submits requests to a running loop. Delivery is bounded by the
// call's context; a call that cannot be delivered in time fails with
// ErrServicePaused. Once delivered, the call waits for the loop's answer.
type Client struct {
	requests chan Request
}

func NewClient() *Client {
	return &Client{requests: make(chan Request)}
}

// Requests is the channel to hand to Loop.Run.
func (c *Client) Requests() <-chan Request { return c.requests }

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	req.ctx = ctx
	req.reply = make(chan Response, 1)

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return Response{}, callerErr(ctx.Err())
	}

	// A delivered request is always answered within the same service pass.
	resp := <-req.reply
	return resp, resp.Err
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	resp, err := c.do(ctx, Request{Op: OpStatus})
	return resp.Status, err
}

func (c *Client) Tuning(ctx context.Context) (config.Tuning, error) {
	resp, err := c.do(ctx, Request{Op: OpGetTuning})
	return resp.Tuning, err
}

// SetTuning returns the tuning in effect after clamping.
func (c *Client) SetTuning(ctx context.Context, p config.Patch) (config.Tuning, error) {
	resp, err := c.do(ctx, Request{Op: OpSetTuning, Patch: p})
	return resp.Tuning, err
}

func (c *Client) Start(ctx context.Context) (Status, error) {
	resp, err := c.do(ctx, Request{Op: OpStart})
	return resp.Status, err
}

func (c *Client) Samples(ctx context.Context) ([]sampling.Sample, error) {
	resp, err := c.do(ctx, Request{Op: OpSamples})
	return resp.Samples, err
}

// Running reports whether st describes a run in progress, staging included.
func Running(st Status) bool { return st.Phase == rig.Running }
