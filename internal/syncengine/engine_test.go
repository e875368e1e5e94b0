package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/nguyentranbao-ct/chat-sync/internal/cache"
	"github.com/nguyentranbao-ct/chat-sync/internal/connectivity"
	"github.com/nguyentranbao-ct/chat-sync/internal/feed"
	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

var (
	base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	me   = models.Author{ID: "u1", DisplayName: "Mai"}
)

type fakeSub struct {
	onBatch   feed.BatchHandler
	onErr     feed.ErrorHandler
	mu        sync.Mutex
	cancelled int
}

func (s *fakeSub) Cancel() {
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
}

func (s *fakeSub) cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Emit delivers a batch the way a store callback would, from outside the
// engine's critical section.
func (s *fakeSub) Emit(docs ...feed.RawDocument) { s.onBatch(docs) }
func (s *fakeSub) Fail(err error)                { s.onErr(err) }

type fakeFeed struct {
	mu           sync.Mutex
	subs         []*fakeSub
	subscribeErr error
	appendErr    error
	appended     []models.Message
	nextID       int
}

func (f *fakeFeed) Subscribe(ctx context.Context, onBatch feed.BatchHandler, onErr feed.ErrorHandler) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	s := &fakeSub{onBatch: onBatch, onErr: onErr}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeFeed) Append(ctx context.Context, msg models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.nextID++
	f.appended = append(f.appended, msg)
	return "srv-" + string(rune('0'+f.nextID)), nil
}

func (f *fakeFeed) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeFeed) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type flakyStore struct {
	*cache.MemoryStore
	writeErr error
	writes   int
}

func (s *flakyStore) Write(ctx context.Context, list []models.Message) error {
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.MemoryStore.Write(ctx, list)
}

func doc(id, text string, at time.Time) feed.RawDocument {
	return feed.RawDocument{ID: id, Data: map[string]any{
		"text":      text,
		"createdAt": at,
		"user":      map[string]any{"_id": "u2", "name": "Lan"},
	}}
}

func msg(id, text string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		Text:      util.Ptr(text),
		CreatedAt: at,
		Author:    models.Author{ID: "u2", DisplayName: "Lan"},
	}
}

func ids(list []models.Message) []string {
	return util.ConvertList(list, func(m models.Message) string { return m.ID })
}

type harness struct {
	engine  *Engine
	feed    *fakeFeed
	store   *flakyStore
	monitor *connectivity.Manual

	mu        sync.Mutex
	publishes [][]models.Message
	notices   []Notice
}

func newHarness(t *testing.T, initial models.ConnectivityState) *harness {
	t.Helper()
	h := &harness{
		feed:    &fakeFeed{},
		store:   &flakyStore{MemoryStore: cache.NewMemoryStore()},
		monitor: connectivity.NewManual(initial),
	}
	e, err := New(Deps{
		Feed:    h.feed,
		Cache:   h.store,
		Monitor: h.monitor,
		Logger:  zap.NewNop().Sugar(),
		Clock:   func() time.Time { return base },
	}, Options{Author: me})
	require.NoError(t, err)
	h.engine = e
	e.Subscribe(func(list []models.Message) {
		h.mu.Lock()
		h.publishes = append(h.publishes, list)
		h.mu.Unlock()
	})
	e.Notices(func(n Notice) {
		h.mu.Lock()
		h.notices = append(h.notices, n)
		h.mu.Unlock()
	})
	t.Cleanup(e.Teardown)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
}

func (h *harness) publishCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.publishes)
}

func (h *harness) noticeKinds() []NoticeKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return util.ConvertList(h.notices, func(n Notice) NoticeKind { return n.Kind })
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestStartConnectedGoesLive(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)

	assert.Equal(t, models.EngineLive, h.engine.State())
	assert.True(t, h.engine.CanSend())
	assert.Equal(t, 1, h.feed.subCount())
	assert.Empty(t, h.engine.Messages())

	assert.ErrorIs(t, h.engine.Start(context.Background()), errAlreadyStarted)
}

func TestBatchIsSortedPublishedAndCached(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)

	h.feed.sub(0).Emit(
		doc("b", "older", base.Add(-time.Minute)),
		doc("c", "tie", base),
		doc("a", "tie", base),
	)

	assert.Equal(t, []string{"a", "c", "b"}, ids(h.engine.Messages()))

	cached, err := h.store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.engine.Messages(), cached)
	assert.Equal(t, 1, h.publishCount())
}

func TestBatchSkipsMalformedDocuments(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)

	h.feed.sub(0).Emit(
		doc("a", "ok", base),
		feed.RawDocument{ID: "broken", Data: map[string]any{"text": "no time"}},
	)

	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
}

func TestColdStartOfflineServesCache(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	want := []models.Message{msg("m2", "hi", base), msg("m1", "yo", base.Add(-time.Hour))}
	require.NoError(t, h.store.MemoryStore.Write(context.Background(), want))

	h.start(t)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.False(t, h.engine.CanSend())
	assert.Equal(t, want, h.engine.Messages())
	assert.Zero(t, h.feed.subCount())
}

func TestColdStartEmptyCache(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	h.start(t)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.Empty(t, h.engine.Messages())
	assert.Equal(t, 1, h.publishCount())
}

func TestCorruptCachePublishesEmptyList(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	h.store.SetRaw([]byte("{not json"))

	h.start(t)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.Empty(t, h.engine.Messages())
}

func TestUnknownConnectivityStartsOfflineThenGoesLive(t *testing.T) {
	h := newHarness(t, models.ConnectivityUnknown)
	h.start(t)
	assert.Equal(t, models.EngineOffline, h.engine.State())

	h.monitor.SetConnected(true)

	assert.Equal(t, models.EngineLive, h.engine.State())
	assert.Equal(t, 1, h.feed.subCount())
}

func TestSendWhileOfflineNeverReachesFeed(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	h.start(t)

	_, err := h.engine.Send(context.Background(), models.Draft{Text: util.Ptr("hello")})

	assert.ErrorIs(t, err, models.ErrNotSent)
	assert.Equal(t, "You're offline. Unable to send messages.", status.Convert(err).Message())
	assert.Zero(t, h.feed.appendCount())
	assert.Empty(t, h.engine.Messages())
}

func TestSendWhileLiveDoesNotInsertLocally(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	h.feed.sub(0).Emit(doc("a", "first", base.Add(-time.Minute)))
	before := h.publishCount()

	id, err := h.engine.Send(context.Background(), models.Draft{Text: util.Ptr("hello")})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)

	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
	assert.Equal(t, before, h.publishCount())

	h.feed.mu.Lock()
	sent := h.feed.appended[0]
	h.feed.mu.Unlock()
	assert.Equal(t, "hello", *sent.Text)
	assert.Equal(t, me, sent.Author)
	assert.Equal(t, base, sent.CreatedAt)
	assert.Empty(t, sent.ID)

	h.feed.sub(0).Emit(doc("srv-1", "hello", base), doc("a", "first", base.Add(-time.Minute)))
	assert.Equal(t, []string{"srv-1", "a"}, ids(h.engine.Messages()))
}

func TestSendRejectedLeavesListUnchanged(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	h.feed.sub(0).Emit(doc("a", "first", base))
	h.feed.appendErr = errors.New("permission denied")

	_, err := h.engine.Send(context.Background(), models.Draft{Text: util.Ptr("hello")})

	assert.ErrorIs(t, err, models.ErrSendFailed)
	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
	assert.Equal(t, models.EngineLive, h.engine.State())
}

func TestSendInvalidDraft(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)

	_, err := h.engine.Send(context.Background(), models.Draft{})

	assert.ErrorIs(t, err, models.ErrInvalidDraft)
	assert.Zero(t, h.feed.appendCount())
}

func TestSendOfflineChecksStateBeforeDraft(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	h.start(t)

	_, err := h.engine.Send(context.Background(), models.Draft{})

	assert.ErrorIs(t, err, models.ErrNotSent)
	assert.NotErrorIs(t, err, models.ErrInvalidDraft)
	assert.Zero(t, h.feed.appendCount())
}

func TestEmptyBatchClearsListAndCache(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	sub := h.feed.sub(0)
	sub.Emit(doc("a", "a", base))
	require.Equal(t, []string{"a"}, ids(h.engine.Messages()))

	var got []models.Message
	h.engine.Subscribe(func(list []models.Message) { got = list })
	writes := h.store.writes

	sub.Emit()

	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, h.engine.Messages())
	assert.Equal(t, writes+1, h.store.writes)
	cached, err := h.store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestDisconnectCancelsOnceAndDropsLateBatch(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	sub := h.feed.sub(0)
	sub.Emit(doc("a", "first", base))

	h.monitor.SetConnected(false)
	h.monitor.SetConnected(false)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.Equal(t, 1, sub.cancels())
	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))

	writes := h.store.writes
	sub.Emit(doc("late", "too late", base.Add(time.Hour)), doc("a", "first", base))

	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
	assert.Equal(t, writes, h.store.writes)
}

func TestReconnectReplacesListWithNewSubscription(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	h.feed.sub(0).Emit(doc("a", "a", base.Add(-time.Minute)))

	h.monitor.SetConnected(false)
	h.monitor.SetConnected(true)
	require.Equal(t, 2, h.feed.subCount())
	assert.Equal(t, models.EngineLive, h.engine.State())
	// until the new subscription delivers, the old list stays
	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))

	h.feed.sub(1).Emit(doc("b", "b", base), doc("a", "a", base.Add(-time.Minute)))
	assert.Equal(t, []string{"b", "a"}, ids(h.engine.Messages()))

	// the first subscription is retired for good
	h.feed.sub(0).Emit(doc("x", "x", base.Add(time.Hour)))
	assert.Equal(t, []string{"b", "a"}, ids(h.engine.Messages()))
}

func TestSubscribeFailureAtStartFallsBackToCache(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	want := []models.Message{msg("m1", "cached", base)}
	require.NoError(t, h.store.MemoryStore.Write(context.Background(), want))
	h.feed.subscribeErr = errors.New("unavailable")

	h.start(t)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.Equal(t, want, h.engine.Messages())
	assert.Equal(t, []NoticeKind{NoticeSubscriptionError}, h.noticeKinds())
}

func TestSubscribeFailureOnReconnectStaysOffline(t *testing.T) {
	h := newHarness(t, models.ConnectivityDisconnected)
	h.start(t)
	h.feed.subscribeErr = errors.New("unavailable")

	h.monitor.SetConnected(true)

	assert.Equal(t, models.EngineOffline, h.engine.State())
	assert.Equal(t, []NoticeKind{NoticeSubscriptionError}, h.noticeKinds())
}

func TestSubscriptionErrorKeepsStateAndList(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	sub := h.feed.sub(0)
	sub.Emit(doc("a", "a", base))

	sub.Fail(errors.New("stream reset"))

	assert.Equal(t, models.EngineLive, h.engine.State())
	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
	assert.Equal(t, []NoticeKind{NoticeSubscriptionError}, h.noticeKinds())

	h.monitor.SetConnected(false)
	sub.Fail(errors.New("after cancel"))
	assert.Len(t, h.noticeKinds(), 1)
}

func TestCacheWriteFailureStillPublishes(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.store.writeErr = errors.New("disk full")
	h.start(t)

	h.feed.sub(0).Emit(doc("a", "a", base))

	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
	assert.Equal(t, []NoticeKind{NoticeCacheWriteFailed}, h.noticeKinds())
}

func TestTeardown(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	sub := h.feed.sub(0)
	sub.Emit(doc("a", "a", base))
	publishes := h.publishCount()
	writes := h.store.writes

	h.engine.Teardown()
	h.engine.Teardown()

	assert.Equal(t, models.EngineTeardown, h.engine.State())
	assert.Equal(t, 1, sub.cancels())
	select {
	case <-h.engine.Done():
	default:
		t.Fatal("done not closed")
	}

	sub.Emit(doc("b", "b", base.Add(time.Minute)))
	h.monitor.SetConnected(false)
	h.monitor.SetConnected(true)

	assert.Equal(t, publishes, h.publishCount())
	assert.Equal(t, writes, h.store.writes)
	assert.Equal(t, 1, h.feed.subCount())
	assert.Equal(t, models.EngineTeardown, h.engine.State())

	_, err := h.engine.Send(context.Background(), models.Draft{Text: util.Ptr("hi")})
	assert.ErrorIs(t, err, models.ErrNotSent)
	assert.ErrorIs(t, err, models.ErrTornDown)
	assert.Zero(t, h.feed.appendCount())
}

func TestTeardownBeforeStart(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.engine.Teardown()

	assert.Equal(t, models.EngineTeardown, h.engine.State())
	assert.Error(t, h.engine.Start(context.Background()))
	assert.Zero(t, h.feed.subCount())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)

	calls := 0
	unsub := h.engine.Subscribe(func([]models.Message) { calls++ })
	h.feed.sub(0).Emit(doc("a", "a", base))
	unsub()
	unsub()
	h.feed.sub(0).Emit(doc("b", "b", base.Add(time.Minute)))

	assert.Equal(t, 1, calls)
}

func TestMessagesReturnsCopy(t *testing.T) {
	h := newHarness(t, models.ConnectivityConnected)
	h.start(t)
	h.feed.sub(0).Emit(doc("a", "a", base))

	got := h.engine.Messages()
	got[0].ID = "mutated"

	assert.Equal(t, []string{"a"}, ids(h.engine.Messages()))
}

func TestMetricsTrackState(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	e, err := New(Deps{
		Feed:    &fakeFeed{},
		Cache:   cache.NewMemoryStore(),
		Monitor: connectivity.NewManual(models.ConnectivityDisconnected),
		Metrics: m,
	}, Options{Author: me})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Teardown()

	_, err = e.Send(context.Background(), models.Draft{Text: util.Ptr("x")})
	assert.ErrorIs(t, err, models.ErrNotSent)
	assert.Equal(t, models.EngineOffline, e.State())
}
