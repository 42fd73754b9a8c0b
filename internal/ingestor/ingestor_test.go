package ingestor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockwatch-bot/blockwatch/internal/mempool"
)

func newTestIngestor(out chan mempool.BlockEvent) *Ingestor {
	return &Ingestor{
		cfg: Config{Out: out},
	}
}

func TestEmitForwardsForwardProgress(t *testing.T) {
	out := make(chan mempool.BlockEvent, 1)
	in := newTestIngestor(out)
	ctx := context.Background()

	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 100}})

	select {
	case ev := <-out:
		require.Equal(t, uint64(100), ev.Tip.Height)
	default:
		t.Fatal("expected event to be forwarded")
	}
	require.True(t, in.haveLast)
	require.Equal(t, uint64(100), in.lastHeight)
}

func TestEmitDropsStaleAndDuplicateHeights(t *testing.T) {
	out := make(chan mempool.BlockEvent, 2)
	in := newTestIngestor(out)
	ctx := context.Background()

	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 100}})
	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 100}})
	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 99}})

	require.Len(t, out, 1)
}

func TestEmitAllowsNonContiguousForwardProgress(t *testing.T) {
	out := make(chan mempool.BlockEvent, 2)
	in := newTestIngestor(out)
	ctx := context.Background()

	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 100}})
	in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 105}})

	require.Len(t, out, 2)
	require.Equal(t, uint64(105), in.lastHeight)
}

func TestEmitReturnsPromptlyOnCancelledContext(t *testing.T) {
	out := make(chan mempool.BlockEvent) // unbuffered, nobody reading
	in := newTestIngestor(out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		in.emit(ctx, mempool.BlockEvent{Tip: mempool.Tip{Height: 1}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit should not block forever once ctx is cancelled")
	}
}
