// Package gateway runs store operations against a handle that lives for exactly
// one call. A Gateway acquires the handle, hands it to the caller's operation and
// releases it on every exit path, translating failures into the repository error
// taxonomy on the way out.
//
// Two operation shapes exist. Execute is for side-effecting and administrative work
// where silent failure is unacceptable. Find is for reads: when no handle can be
// obtained it reports "absent" instead of failing, unless WithStrictFind is set.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxviazov/storegate/internal/repository"
)

// Pool hands out handles. Acquire must either return a usable handle or an error
// after cleaning up anything it set up itself; Release is called exactly once for
// every handle Acquire returned.
type Pool[H any] interface {
	Acquire(ctx context.Context) (H, error)
	Release(h H) error
}

// PoolFuncs adapts a pair of functions to Pool. A nil ReleaseFunc releases nothing.
type PoolFuncs[H any] struct {
	AcquireFunc func(ctx context.Context) (H, error)
	ReleaseFunc func(h H) error
}

func (p PoolFuncs[H]) Acquire(ctx context.Context) (H, error) { return p.AcquireFunc(ctx) }

func (p PoolFuncs[H]) Release(h H) error {
	if p.ReleaseFunc == nil {
		return nil
	}
	return p.ReleaseFunc(h)
}

// Operation is the caller-supplied unit of work. The handle must not be retained
// after the operation returns.
type Operation[H any] func(ctx context.Context, h H) error

// Gateway scopes one handle per call for a single backend.
// It is safe for concurrent use as long as the Pool is.
type Gateway[H any] struct {
	backend  string
	pool     Pool[H]
	setup    Operation[H]
	strict   bool
	log      zerolog.Logger
	observer Observer
}

// Option customizes a Gateway.
type Option[H any] func(*Gateway[H])

// WithSetup runs fn on every freshly acquired handle before the operation.
// A setup failure counts as an acquisition failure; the handle is still released.
func WithSetup[H any](fn Operation[H]) Option[H] {
	return func(g *Gateway[H]) { g.setup = fn }
}

// WithStrictFind makes Find return KindAccessFailure when no handle can be obtained
// instead of collapsing it into "absent".
func WithStrictFind[H any]() Option[H] {
	return func(g *Gateway[H]) { g.strict = true }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger[H any](l zerolog.Logger) Option[H] {
	return func(g *Gateway[H]) { g.log = l }
}

// WithObserver registers an observer for operation outcomes.
func WithObserver[H any](o Observer) Option[H] {
	return func(g *Gateway[H]) {
		if o != nil {
			g.observer = o
		}
	}
}

// New builds a gateway for backend over pool.
func New[H any](backend string, pool Pool[H], opts ...Option[H]) *Gateway[H] {
	g := &Gateway[H]{
		backend:  backend,
		pool:     pool,
		log:      zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With().Str("component", "gateway").Str("backend", backend).Logger()
	return g
}

// Backend returns the backend name the gateway was built for.
func (g *Gateway[H]) Backend() string { return g.backend }

// Execute runs op against a freshly acquired handle and releases it afterwards.
// Every failure is returned as a repository error; taxonomy errors pass unchanged.
func (g *Gateway[H]) Execute(ctx context.Context, op Operation[H]) error {
	start := time.Now()
	_, err := g.run(ctx, op)
	err = repository.AccessFailure(g.backend+".execute", err)
	g.observer.OperationDone(g.backend, ShapeExecute, outcomeOf(err, true), time.Since(start))
	return err
}

// Find runs op against a freshly acquired handle and returns its value.
// op reports absence through its bool result. When the handle cannot be acquired
// Find returns absent without error unless the gateway was built WithStrictFind.
// Failures raised by op itself always propagate.
func Find[H, T any](ctx context.Context, g *Gateway[H], op func(ctx context.Context, h H) (T, bool, error)) (T, bool, error) {
	start := time.Now()
	var (
		out   T
		found bool
	)
	acquired, err := g.run(ctx, func(ctx context.Context, h H) error {
		v, ok, err := op(ctx, h)
		if err != nil {
			return err
		}
		out, found = v, ok
		return nil
	})
	if err != nil {
		var zero T
		if !acquired && !g.strict {
			g.log.Debug().Err(err).Msg("handle unavailable, reporting absent")
			g.observer.OperationDone(g.backend, ShapeFind, OutcomeAbsent, time.Since(start))
			return zero, false, nil
		}
		err = repository.AccessFailure(g.backend+".find", err)
		g.observer.OperationDone(g.backend, ShapeFind, outcomeOf(err, true), time.Since(start))
		return zero, false, err
	}
	g.observer.OperationDone(g.backend, ShapeFind, outcomeOf(nil, found), time.Since(start))
	return out, found, nil
}

// run is the single place where handles are acquired and released.
// acquired is false when Acquire or the setup hook failed.
func (g *Gateway[H]) run(ctx context.Context, op Operation[H]) (acquired bool, err error) {
	h, err := g.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		rerr := g.pool.Release(h)
		if rerr == nil {
			return
		}
		if err != nil {
			g.log.Warn().Err(rerr).AnErr("operation_error", err).Msg("release handle failed")
			return
		}
		err = rerr
	}()

	if g.setup != nil {
		if err := g.setup(ctx, h); err != nil {
			return false, err
		}
	}
	return true, op(ctx, h)
}
