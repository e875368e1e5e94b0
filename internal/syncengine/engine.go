// Package syncengine keeps the chat's message list in step with the remote
// feed while connected and serves the cached snapshot while offline.
//
// The engine is a small state machine:
//
//	INITIALIZING -> LIVE      connectivity known-connected at Start
//	INITIALIZING -> OFFLINE   otherwise; cached snapshot is published
//	LIVE         -> OFFLINE   disconnect edge; subscription cancelled, list kept
//	OFFLINE      -> LIVE      connect edge; next batch replaces the list
//	any          -> TEARDOWN  Teardown
//
// All transitions and batch handling run under one mutex, which stands in for
// the UI event loop. Every subscription is tagged with a generation; a batch
// from an older generation is dropped, so nothing delivered after a cancel
// can reach the published list.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/cache"
	"github.com/nguyentranbao-ct/chat-sync/internal/connectivity"
	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

var errAlreadyStarted = errors.New("engine already started")

// Deps are the collaborators of one chat session, constructed once by the
// caller and passed in explicitly.
type Deps struct {
	Feed    feed.Client
	Cache   cache.Store
	Monitor connectivity.Monitor
	Logger  *zap.SugaredLogger
	Metrics *Metrics
	Clock   func() time.Time
}

type Options struct {
	// Author is stamped on every message sent from this session.
	Author       models.Author
	CacheTimeout time.Duration
}

type Engine struct {
	deps   Deps
	opts   Options
	logger *zap.SugaredLogger

	// lifetime of the session; cancelled by Teardown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      models.EngineState
	sub        feed.Subscription
	generation uint64
	unwatch    func()

	// read without mu so listeners and HTTP handlers never contend with the
	// state machine
	published atomic.Pointer[[]models.Message]
	stateView atomic.Value

	lmu             sync.Mutex
	nextListenerID  int
	listeners       map[int]func([]models.Message)
	noticeListeners map[int]func(Notice)
}

func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Feed == nil || deps.Cache == nil || deps.Monitor == nil {
		return nil, fmt.Errorf("sync engine needs a feed, a cache and a connectivity monitor")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		deps:            deps,
		opts:            opts,
		logger:          deps.Logger,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		state:           models.EngineInitializing,
		listeners:       make(map[int]func([]models.Message)),
		noticeListeners: make(map[int]func(Notice)),
	}
	empty := []models.Message{}
	e.published.Store(&empty)
	e.stateView.Store(models.EngineInitializing)
	deps.Metrics.setState(models.EngineInitializing)
	return e, nil
}

// Start resolves the initial state from the connectivity monitor and begins
// reacting to its transitions.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != models.EngineInitializing {
		return errAlreadyStarted
	}

	e.unwatch = e.deps.Monitor.OnChange(e.onConnectivity)

	current := e.deps.Monitor.Current()
	e.logger.Infow("sync engine starting", "connectivity", current, "author_id", e.opts.Author.ID)

	if current == models.ConnectivityConnected {
		if err := e.goLive(ctx); err == nil {
			return nil
		}
	}
	e.loadCachedSnapshot(ctx)
	e.setState(models.EngineOffline)
	return nil
}

// State returns the current state of the machine.
func (e *Engine) State() models.EngineState {
	return e.stateView.Load().(models.EngineState)
}

// Messages returns a copy of the published list, newest first.
func (e *Engine) Messages() []models.Message {
	return models.CloneMessages(*e.published.Load())
}

// CanSend reports whether Send would reach the feed right now.
func (e *Engine) CanSend() bool {
	return e.State() == models.EngineLive
}

// Done is closed once the engine is torn down.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Subscribe registers fn to receive the full list on every publish. fn runs
// on the engine's critical path: it must not block and must not call Send or
// Teardown.
func (e *Engine) Subscribe(fn func([]models.Message)) (unsubscribe func()) {
	e.lmu.Lock()
	id := e.nextListenerID
	e.nextListenerID++
	e.listeners[id] = fn
	e.lmu.Unlock()

	return e.unsubscriber(func() { delete(e.listeners, id) })
}

// Notices registers fn for one-shot failure reports, with the same
// constraints as Subscribe.
func (e *Engine) Notices(fn func(Notice)) (unsubscribe func()) {
	e.lmu.Lock()
	id := e.nextListenerID
	e.nextListenerID++
	e.noticeListeners[id] = fn
	e.lmu.Unlock()

	return e.unsubscriber(func() { delete(e.noticeListeners, id) })
}

func (e *Engine) unsubscriber(remove func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			e.lmu.Lock()
			remove()
			e.lmu.Unlock()
		})
	}
}

// Send appends one message built from draft. It never inserts the message
// locally: the message shows up when the feed echoes it back.
func (e *Engine) Send(ctx context.Context, draft models.Draft) (id string, err error) {
	defer func() { e.deps.Metrics.send(sendResult(err)) }()

	switch e.State() {
	case models.EngineLive:
	case models.EngineTeardown:
		return "", fmt.Errorf("%w: %w", models.ErrNotSent, models.ErrTornDown)
	default:
		return "", models.ErrNotSent
	}

	if err := draft.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidDraft, err)
	}

	msg := models.Message{
		Text:       draft.Text,
		CreatedAt:  e.deps.Clock().UTC(),
		Author:     e.opts.Author,
		Attachment: draft.Attachment,
	}
	id, err = e.deps.Feed.Append(ctx, msg)
	if err != nil {
		e.logger.Warnw("send failed", "author_id", e.opts.Author.ID, "error", err)
		return "", fmt.Errorf("%w: %w", models.ErrSendFailed, err)
	}

	e.logger.Debugw("message appended", "message_id", id)
	return id, nil
}

// Teardown ends the session. It is safe to call more than once; after the
// first call nothing is written to the cache or published.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == models.EngineTeardown {
		return
	}

	e.closeSubscription()
	if e.unwatch != nil {
		e.unwatch()
		e.unwatch = nil
	}
	e.setState(models.EngineTeardown)
	e.cancel()
	close(e.done)

	e.lmu.Lock()
	clear(e.listeners)
	clear(e.noticeListeners)
	e.lmu.Unlock()

	e.logger.Infow("sync engine torn down", "author_id", e.opts.Author.ID)
}

func (e *Engine) onConnectivity(state models.ConnectivityState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == models.EngineTeardown, e.state == models.EngineInitializing:
		// Start resolves the initial state itself.
		return
	case state == models.ConnectivityConnected && e.state == models.EngineOffline:
		if err := e.goLive(e.ctx); err != nil {
			e.logger.Warnw("staying offline", "error", err)
		}
	case state == models.ConnectivityDisconnected && e.state == models.EngineLive:
		e.closeSubscription()
		e.setState(models.EngineOffline)
		e.logger.Infow("sync engine offline", "messages", len(*e.published.Load()))
	}
}

// goLive opens a new subscription. On failure the caller stays or falls
// back to offline; the failure is reported as a notice. mu must be held.
func (e *Engine) goLive(ctx context.Context) error {
	e.generation++
	gen := e.generation

	sub, err := e.deps.Feed.Subscribe(ctx,
		func(docs []feed.RawDocument) { e.onRemoteBatch(gen, docs) },
		func(err error) { e.onSubscriptionError(gen, err) },
	)
	if err != nil {
		err = fmt.Errorf("%w: %w", models.ErrSubscription, err)
		e.logger.Errorw("subscribe failed", "error", err)
		e.notify(newNotice(NoticeSubscriptionError, err, e.deps.Clock()))
		return err
	}

	e.sub = sub
	e.setState(models.EngineLive)
	e.logger.Infow("sync engine live", "generation", gen)
	return nil
}

// closeSubscription cancels the live subscription before any state change,
// and retires its generation. mu must be held.
func (e *Engine) closeSubscription() {
	if e.sub != nil {
		e.sub.Cancel()
		e.sub = nil
	}
	e.generation++
}

func (e *Engine) onRemoteBatch(gen uint64, docs []feed.RawDocument) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != models.EngineLive || gen != e.generation {
		e.logger.Debugw("dropping stale batch", "generation", gen, "current", e.generation, "state", e.state)
		e.deps.Metrics.observeBatch("dropped", start)
		return
	}

	list, errs := feed.NormalizeBatch(docs)
	for _, err := range errs {
		e.logger.Warnw("skipping malformed document", "error", err)
		e.deps.Metrics.skippedDocument(err)
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.opts.CacheTimeout)
	err := e.deps.Cache.Write(ctx, list)
	cancel()
	e.deps.Metrics.cacheWrite(err)
	if err != nil {
		e.logger.Errorw("cache write-through failed", "error", err)
		e.notify(newNotice(NoticeCacheWriteFailed, err, e.deps.Clock()))
	}

	e.publish(list)
	e.deps.Metrics.observeBatch("published", start)
}

func (e *Engine) onSubscriptionError(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.state != models.EngineLive {
		return
	}
	err = fmt.Errorf("%w: %w", models.ErrSubscription, err)
	e.logger.Errorw("feed delivery failed", "error", err)
	e.notify(newNotice(NoticeSubscriptionError, err, e.deps.Clock()))
}

// loadCachedSnapshot publishes the cached list verbatim. Read failures and
// corrupt snapshots publish an empty list. mu must be held.
func (e *Engine) loadCachedSnapshot(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CacheTimeout)
	defer cancel()

	list, err := e.deps.Cache.Read(ctx)
	if err != nil {
		e.logger.Warnw("cached snapshot unavailable, starting empty", "error", err)
		list = []models.Message{}
	}
	e.publish(list)
}

func (e *Engine) publish(list []models.Message) {
	e.published.Store(&list)

	e.lmu.Lock()
	fns := orderedValues(e.listeners)
	e.lmu.Unlock()

	for _, fn := range fns {
		fn(models.CloneMessages(list))
	}
}

func (e *Engine) notify(n Notice) {
	e.lmu.Lock()
	fns := orderedValues(e.noticeListeners)
	e.lmu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

func (e *Engine) setState(s models.EngineState) {
	e.state = s
	e.stateView.Store(s)
	e.deps.Metrics.setState(s)
}

func orderedValues[V any](m map[int]V) []V {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
