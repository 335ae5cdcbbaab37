package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"asset-cache/config"
	"asset-cache/pkg/interfaces"
	"asset-cache/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Opener opens the persistent store. It runs on its own goroutine and
// must return promptly once ctx is cancelled; Close waits for it only up
// to the init timeout.
type Opener func(ctx context.Context) (interfaces.StoreBackend, error)

// Engine owns one store connection. Opening starts at construction and
// never blocks the constructor; callers wait through Store.
type Engine struct {
	cfg    config.CacheConfig
	log    *utils.Logger
	ready  chan struct{}
	cancel context.CancelFunc

	// written once by the opener goroutine before ready is closed
	store   interfaces.StoreBackend
	initErr error
}

// NewEngine starts opening the store in the background
func NewEngine(cfg config.CacheConfig, log *utils.Logger, open Opener) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		log:    log,
		ready:  make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(e.ready)
		start := time.Now()
		store, err := open(ctx)
		if err != nil {
			e.initErr = err
			log.WithFunc().WithError(err).Error("Cache store initialization failed")
			return
		}
		e.store = store
		log.WithFunc().WithField("durationMs", time.Since(start).Milliseconds()).Info("Cache store initialized")
	}()

	return e
}

// Config returns the settings the engine was built with
func (e *Engine) Config() config.CacheConfig {
	return e.cfg
}

// Ready reports whether initialization finished successfully
func (e *Engine) Ready() bool {
	select {
	case <-e.ready:
		return e.initErr == nil
	default:
		return false
	}
}

// Store waits for initialization, bounded by the init timeout and ctx.
// The opener keeps running when the wait gives up, so a slow open still
// serves later callers.
func (e *Engine) Store(ctx context.Context) (interfaces.StoreBackend, error) {
	select {
	case <-e.ready:
		return e.result()
	default:
	}

	timeout := e.initTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ready:
		return e.result()
	case <-timer.C:
		return nil, fmt.Errorf("%w: initialization did not finish within %s", ErrStoreUnavailable, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
	}
}

func (e *Engine) initTimeout() time.Duration {
	if e.cfg.InitTimeout <= 0 {
		return config.DefaultInitTimeout
	}
	return e.cfg.InitTimeout
}

func (e *Engine) result() (interfaces.StoreBackend, error) {
	if e.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, e.initErr)
	}
	return e.store, nil
}

// Close aborts a pending open and releases the store. An opener that
// ignores cancellation is waited for at most the init timeout; whatever
// it eventually returns is closed in the background.
func (e *Engine) Close() error {
	e.cancel()

	timeout := e.initTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ready:
	case <-timer.C:
		go func() {
			<-e.ready
			if e.store != nil {
				if err := e.store.Close(); err != nil {
					e.log.WithFunc().WithError(err).Warn("Failed to close late cache store")
				}
			}
		}()
		return fmt.Errorf("%w: opener did not stop within %s", ErrStoreUnavailable, timeout)
	}

	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Lifecycle holds the one engine of the process. It is an explicit value
// passed to consumers rather than a package global.
type Lifecycle struct {
	mu      sync.Mutex
	engine  *Engine
	factory func() *Engine
	log     *utils.Logger
}

// NewLifecycle returns a holder that builds its engine with factory on
// first use
func NewLifecycle(factory func() *Engine, log *utils.Logger) *Lifecycle {
	return &Lifecycle{factory: factory, log: log}
}

// Instance returns the shared engine, constructing it on first call
func (l *Lifecycle) Instance() *Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		l.engine = l.factory()
		l.log.WithFunc().Debug("Cache engine created")
	}
	return l.engine
}

// Reset closes and forgets the current engine; the next Instance call
// builds a fresh one.
func (l *Lifecycle) Reset() error {
	l.mu.Lock()
	engine := l.engine
	l.engine = nil
	l.mu.Unlock()

	if engine == nil {
		return nil
	}
	if err := engine.Close(); err != nil {
		l.log.WithFunc().WithError(err).WithFields(logrus.Fields{"action": "reset"}).Warn("Failed to close cache engine")
		return fmt.Errorf("failed to close cache engine: %w", err)
	}
	return nil
}
