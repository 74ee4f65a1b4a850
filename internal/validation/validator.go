package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"unicode/utf8"
)

// Validator screens a request and reports a pass/fail verdict with a score in
// [0,1]. Implementations must be deterministic for a given request so tests
// never depend on randomness, must respect ctx cancellation, and must not
// retain the request after returning.
type Validator interface {
	Name() string
	Validate(ctx context.Context, req Request) (Outcome, error)
}

// Func adapts a function into a named Validator; used heavily in tests.
type Func struct {
	ValidatorName string
	Fn            func(ctx context.Context, req Request) (Outcome, error)
}

func (f Func) Name() string { return f.ValidatorName }

func (f Func) Validate(ctx context.Context, req Request) (Outcome, error) {
	return f.Fn(ctx, req)
}

// PayloadValidator checks the structural health of the payload: present,
// within size bounds, and well-formed JSON.
type PayloadValidator struct {
	MaxBytes int
}

func (PayloadValidator) Name() string { return "payload" }

func (v PayloadValidator) Validate(_ context.Context, req Request) (Outcome, error) {
	max := v.MaxBytes
	if max == 0 {
		max = 1 << 20
	}
	out := Outcome{Validator: v.Name()}
	switch {
	case len(req.Payload) == 0:
		out.Detail = "empty payload"
	case len(req.Payload) > max:
		out.Detail = fmt.Sprintf("payload exceeds %d bytes", max)
	case !json.Valid(req.Payload):
		out.Detail = "payload is not valid JSON"
	default:
		out.Passed = true
		// Smaller payloads score higher; anything over half the cap is
		// still passing but flagged as weaker signal.
		out.Score = 1.0
		if len(req.Payload) > max/2 {
			out.Score = 0.9
		}
	}
	return out, nil
}

// OriginValidator checks that origin metadata is present and plausible.
type OriginValidator struct{}

func (OriginValidator) Name() string { return "origin" }

func (OriginValidator) Validate(_ context.Context, req Request) (Outcome, error) {
	out := Outcome{Validator: "origin"}
	if req.Origin.Source == "" {
		out.Detail = "missing origin source"
		return out, nil
	}
	if !utf8.ValidString(req.Origin.Source) || !utf8.ValidString(req.Origin.Address) {
		out.Detail = "origin metadata is not valid utf-8"
		return out, nil
	}
	out.Passed = true
	out.Score = 0.8
	if req.Origin.Address != "" {
		if ip := net.ParseIP(req.Origin.Address); ip != nil {
			out.Score = 1.0
		} else if _, _, err := net.SplitHostPort(req.Origin.Address); err == nil {
			out.Score = 1.0
		} else {
			out.Detail = "origin address is not an IP or host:port"
		}
	}
	return out, nil
}

// IdentityValidator checks that the request carries a usable identity.
type IdentityValidator struct{}

func (IdentityValidator) Name() string { return "identity" }

func (IdentityValidator) Validate(_ context.Context, req Request) (Outcome, error) {
	out := Outcome{Validator: "identity"}
	if req.ID.IsZero() {
		out.Detail = "missing request id"
		return out, nil
	}
	if req.Timestamp.IsZero() {
		out.Detail = "missing request timestamp"
		return out, nil
	}
	out.Passed = true
	out.Score = 1.0
	return out, nil
}
