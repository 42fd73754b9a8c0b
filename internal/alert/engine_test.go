package alert

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockwatch-bot/blockwatch/internal/mempool"
)

// fakeStore is an in-memory Store used to exercise Engine without pgx.
type fakeStore struct {
	mu      sync.Mutex
	subs    map[int64]Subscription
	nextID  int64
	fired   []Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[int64]Subscription)}
}

func (s *fakeStore) Insert(ctx context.Context, req Request) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := Subscription{
		ID:                s.nextID,
		Kind:              req.Kind,
		Requestor:         req.Requestor,
		Threshold:         req.Threshold,
		WatchedIdentifier: req.WatchedIdentifier,
		Active:            true,
	}
	s.subs[sub.ID] = sub

	out := sub
	return &out, nil
}

func (s *fakeStore) LoadActive(ctx context.Context) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Subscription
	for id := int64(1); id <= s.nextID; id++ {
		sub, ok := s.subs[id]
		if ok && sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) ApplyEvaluation(ctx context.Context, updated []Subscription, notifications []Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updated {
		s.subs[u.ID] = u
	}
	s.fired = append(s.fired, notifications...)
	return nil
}

func (s *fakeStore) get(id int64) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func newTestEngine() (*Engine, *fakeStore, chan Notification) {
	store := newFakeStore()
	notifyOut := make(chan Notification, 16)
	return New(store, notifyOut), store, notifyOut
}

// Scenario A: BlockHeight trigger.
func TestEngineBlockHeightTrigger(t *testing.T) {
	engine, store, notifyOut := newTestEngine()
	ctx := context.Background()

	sub, err := engine.Register(ctx, Request{
		Kind: BlockHeight, Threshold: 100, Requestor: "pk1",
	})
	require.NoError(t, err)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip: mempool.Tip{Height: 99, Hash: "a"},
	}))
	require.Empty(t, notifyOut)
	require.True(t, store.get(sub.ID).Active)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip: mempool.Tip{Height: 100, Hash: "b"},
	}))

	n := <-notifyOut
	require.Equal(t, "pk1", n.Recipient)

	got := store.get(sub.ID)
	require.False(t, got.Active)
	require.Equal(t, uint64(100), got.State.BlockTip.Height)
	require.Equal(t, "b", got.State.BlockTip.Hash)
}

// Scenario B: FeeLevel trigger.
func TestEngineFeeLevelTrigger(t *testing.T) {
	engine, store, notifyOut := newTestEngine()
	ctx := context.Background()

	sub, err := engine.Register(ctx, Request{
		Kind: FeeLevel, Threshold: 10.0, Requestor: "pk2",
	})
	require.NoError(t, err)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip:  mempool.Tip{Height: 1, Hash: "a"},
		Fees: &mempool.RecommendedFees{HalfHour: 12.0},
	}))
	require.Empty(t, notifyOut)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip:  mempool.Tip{Height: 2, Hash: "b"},
		Fees: &mempool.RecommendedFees{HalfHour: 9.5},
	}))

	<-notifyOut
	require.False(t, store.get(sub.ID).Active)
}

// Scenario C: ConfirmHeight two-phase.
func TestEngineConfirmHeightTwoPhase(t *testing.T) {
	engine, store, notifyOut := newTestEngine()
	ctx := context.Background()

	sub, err := engine.Register(ctx, Request{
		Kind: ConfirmHeight, Threshold: 3, WatchedIdentifier: "tx1",
		Requestor: "pk3",
	})
	require.NoError(t, err)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip:          mempool.Tip{Height: 500, Hash: "h500"},
		Transactions: []string{"tx1"},
	}))
	require.Empty(t, notifyOut)
	got := store.get(sub.ID)
	require.True(t, got.Active)
	require.True(t, got.State.TransactionFound)
	require.Equal(t, uint64(500), got.State.BlockTip.Height)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip: mempool.Tip{Height: 502, Hash: "h502"},
	}))
	require.Empty(t, notifyOut)
	require.True(t, store.get(sub.ID).Active)

	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip: mempool.Tip{Height: 503, Hash: "h503"},
	}))
	<-notifyOut
	require.False(t, store.get(sub.ID).Active)
}

// Scenario D: ConfirmHeight negative — the watched transaction never
// appears, so zero notifications fire across ten consecutive blocks.
func TestEngineConfirmHeightNeverSeen(t *testing.T) {
	engine, store, notifyOut := newTestEngine()
	ctx := context.Background()

	sub, err := engine.Register(ctx, Request{
		Kind: ConfirmHeight, Threshold: 3, WatchedIdentifier: "tx1",
		Requestor: "pk3",
	})
	require.NoError(t, err)

	for h := uint64(1); h <= 10; h++ {
		require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
			Tip: mempool.Tip{Height: h, Hash: "x"},
		}))
	}

	require.Empty(t, notifyOut)
	require.True(t, store.get(sub.ID).Active)
}

// Invariant 2/3: a subscription fires at most once, and produces exactly
// one notification.
func TestEngineFiresAtMostOnce(t *testing.T) {
	engine, store, notifyOut := newTestEngine()
	ctx := context.Background()

	sub, err := engine.Register(ctx, Request{
		Kind: BlockHeight, Threshold: 10, Requestor: "pk1",
	})
	require.NoError(t, err)

	event := mempool.BlockEvent{Tip: mempool.Tip{Height: 10, Hash: "a"}}
	require.NoError(t, engine.OnBlock(ctx, event))
	<-notifyOut
	require.False(t, store.get(sub.ID).Active)

	// Invariant 6: re-applying the same event to the now-inactive
	// subscription produces no additional notification.
	require.NoError(t, engine.OnBlock(ctx, event))
	require.Empty(t, notifyOut)

	// A later, higher block must not re-fire the already-inactive sub.
	require.NoError(t, engine.OnBlock(ctx, mempool.BlockEvent{
		Tip: mempool.Tip{Height: 20, Hash: "b"},
	}))
	require.Empty(t, notifyOut)
}

// Invariant 1: evaluation of one subscription is independent of any other
// subscriptions present in the same pass.
func TestEngineEvaluationIndependence(t *testing.T) {
	engine, _, notifyOut := newTestEngine()
	ctx := context.Background()

	_, err := engine.Register(ctx, Request{Kind: BlockHeight, Threshold: 100, Requestor: "a"})
	require.NoError(t, err)
	solo, err := engine.Register(ctx, Request{Kind: BlockHeight, Threshold: 50, Requestor: "b"})
	require.NoError(t, err)

	event := mempool.BlockEvent{Tip: mempool.Tip{Height: 50, Hash: "x"}}
	require.NoError(t, engine.OnBlock(ctx, event))

	n := <-notifyOut
	require.Equal(t, solo.ID, n.SubscriptionID)
	require.Empty(t, notifyOut)
}

// Validation: malformed requests are rejected and never reach the store.
func TestEngineRegisterValidation(t *testing.T) {
	engine, store, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.Register(ctx, Request{Kind: ConfirmHeight, Threshold: 1, Requestor: "p"})
	require.Error(t, err)
	require.Empty(t, store.subs)
}
