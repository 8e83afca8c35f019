// Package poll re-issues reads on fixed timers while the user is signed in.
//
// Each poll is held through a Lease. Releasing the lease, or cancelling the
// context it was started with, stops the timer and waits for the poll
// goroutine to exit, so no fetch starts after release.
package poll

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danz-app/danz/internal/identity"
	"github.com/danz-app/danz/internal/platform/id"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

// Gate reports and announces authentication transitions.
type Gate interface {
	Authenticated() bool
	Subscribe(fn func(identity.State)) func()
}

// FetchFunc performs one refresh. Its context is detached from the lease,
// so a fetch already underway finishes even if the lease is released.
type FetchFunc func(ctx context.Context) error

// Options configure a Poller.
type Options struct {
	Clock clock.Clock
	// Gate suspends polls while unauthenticated. Nil polls unconditionally.
	Gate   Gate
	Logger *zap.Logger
	// FetchTimeout bounds a single fetch. Zero means no bound.
	FetchTimeout time.Duration
}

// Poller starts leases sharing one clock and gate.
type Poller struct {
	clock        clock.Clock
	gate         Gate
	logger       *zap.Logger
	fetchTimeout time.Duration
}

// New builds a Poller.
func New(opts Options) *Poller {
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{clock: clk, gate: opts.Gate, logger: logger, fetchTimeout: opts.FetchTimeout}
}

// State is a lease's lifecycle position.
type State int32

const (
	// Running means the timer is armed.
	Running State = iota
	// Suspended means the timer is stopped until the user signs in.
	Suspended
	// Released means the lease is finished.
	Released
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	default:
		return "released"
	}
}

// Lease is the handle to one running poll.
type Lease struct {
	id      string
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	state   atomic.Int32
	fetches atomic.Int64
	once    sync.Once
}

// ID returns the lease identifier.
func (l *Lease) ID() string { return l.id }

// Name returns the poll name given to Start.
func (l *Lease) Name() string { return l.name }

// State returns the current lifecycle position.
func (l *Lease) State() State { return State(l.state.Load()) }

// Fetches reports how many fetches the lease has started.
func (l *Lease) Fetches() int64 { return l.fetches.Load() }

// Done is closed once the poll goroutine has exited.
func (l *Lease) Done() <-chan struct{} { return l.done }

// Release stops the poll and waits for it to exit. It is safe to call more
// than once.
func (l *Lease) Release() {
	l.once.Do(l.cancel)
	<-l.done
}

// Start runs fetch every interval until ctx ends or the lease is released.
// The first fetch happens one interval after start (or after the user signs
// in); callers wanting data immediately fetch it themselves.
func (p *Poller) Start(ctx context.Context, name string, interval time.Duration, fetch FetchFunc) *Lease {
	ctx, cancel := context.WithCancel(ctx)
	l := &Lease{
		id:     id.MustNewID(),
		name:   strings.TrimSpace(name),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if interval <= 0 || fetch == nil {
		p.logger.Warn("poll not started", zap.String("poll", l.name), zap.Duration("interval", interval))
		l.state.Store(int32(Released))
		cancel()
		close(l.done)
		return l
	}

	auth := make(chan bool, 1)
	unsubscribe := func() {}
	authenticated := true
	if p.gate != nil {
		unsubscribe = p.gate.Subscribe(func(s identity.State) { offer(auth, s.Authenticated) })
		authenticated = p.gate.Authenticated()
	}
	if authenticated {
		l.state.Store(int32(Running))
	} else {
		l.state.Store(int32(Suspended))
	}

	go func() {
		defer close(l.done)
		defer unsubscribe()
		defer l.state.Store(int32(Released))
		p.run(ctx, l, interval, fetch, authenticated, auth)
	}()
	return l
}

func (p *Poller) run(ctx context.Context, l *Lease, interval time.Duration, fetch FetchFunc, authenticated bool, auth <-chan bool) {
	var timer clock.Timer
	if authenticated {
		timer = p.clock.NewTimer(interval)
	}
	stop := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer stop()

	for {
		var tick <-chan time.Time
		if timer != nil {
			tick = timer.Chan()
		}
		select {
		case <-ctx.Done():
			return
		case ok := <-auth:
			switch {
			case ok && timer == nil:
				timer = p.clock.NewTimer(interval)
				l.state.Store(int32(Running))
				p.logger.Debug("poll resumed", zap.String("poll", l.name))
			case !ok && timer != nil:
				stop()
				l.state.Store(int32(Suspended))
				p.logger.Debug("poll suspended", zap.String("poll", l.name))
			}
		case <-tick:
			if ctx.Err() != nil {
				return
			}
			// Credentials can lapse without a transition being announced.
			if p.gate != nil && !p.gate.Authenticated() {
				stop()
				l.state.Store(int32(Suspended))
				p.logger.Debug("poll suspended", zap.String("poll", l.name))
				continue
			}
			p.fetch(ctx, l, fetch)
			if timer != nil {
				timer.Reset(interval)
			}
		}
	}
}

func (p *Poller) fetch(ctx context.Context, l *Lease, fetch FetchFunc) {
	l.fetches.Add(1)
	fetchCtx := context.WithoutCancel(ctx)
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, p.fetchTimeout)
		defer cancel()
	}
	if err := fetch(fetchCtx); err != nil {
		p.logger.Warn("poll fetch failed", zap.String("poll", l.name), zap.Error(err))
	}
}

// offer replaces any unread value in ch with v.
func offer(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
