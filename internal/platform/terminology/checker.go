package terminology

import (
	"context"
	"errors"
	"time"

	"github.com/shr/shr/internal/platform/fhir"
)

// Outcome is the answer for one coding.
type Outcome int

const (
	// Skipped means the coding system is not registry-backed.
	Skipped Outcome = iota
	Valid
	Invalid
	// Unreachable means no answer was obtained; the code may well be valid.
	Unreachable
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Unreachable:
		return "unreachable"
	default:
		return "skipped"
	}
}

// Verdict is returned by value from Checker.Check.
type Verdict struct {
	Outcome Outcome
	Kind    Kind
	URL     string
	Err     error
}

// TimedOut reports whether the verdict is a verification timeout.
func (v Verdict) TimedOut() bool {
	return v.Outcome == Unreachable && errors.Is(v.Err, context.DeadlineExceeded)
}

// Checker routes a coding to the registry and bounds each call with a
// timeout. It does not retry.
type Checker struct {
	router   *Router
	verifier Verifier
	timeout  time.Duration
}

func NewChecker(router *Router, verifier Verifier, timeout time.Duration) *Checker {
	return &Checker{router: router, verifier: verifier, timeout: timeout}
}

func (c *Checker) Check(ctx context.Context, coding fhir.Coding) Verdict {
	kind, url, ok := c.router.Route(coding.System)
	if !ok {
		return Verdict{Outcome: Skipped, URL: url}
	}
	v := Verdict{Kind: kind, URL: url}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	valid, err := c.verifier.Verify(ctx, kind, url, coding.Code)
	switch {
	case err != nil:
		v.Outcome = Unreachable
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		v.Err = err
	case valid:
		v.Outcome = Valid
	default:
		v.Outcome = Invalid
	}
	return v
}
