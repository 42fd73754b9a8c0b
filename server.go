package main

import (
	"context"

	"github.com/go-errors/errors"
	"golang.org/x/sync/errgroup"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
	"github.com/blockwatch-bot/blockwatch/internal/chanutil"
	"github.com/blockwatch-bot/blockwatch/internal/ingestor"
	"github.com/blockwatch-bot/blockwatch/internal/mempool"
	"github.com/blockwatch-bot/blockwatch/internal/relay"
	"github.com/blockwatch-bot/blockwatch/internal/store"
)

// bot owns construction of the three actors and the errgroup used to run
// and join them, mirroring the teacher's top-level server type that owns
// its subsystem trio and exposes Start/Stop/WaitForShutdown.
type bot struct {
	store    *store.Store
	engine   *alert.Engine
	ingestor *ingestor.Ingestor
	gateway  *relay.Gateway

	blockQueue *chanutil.UnboundedQueue[mempool.BlockEvent]
	registers  chan alert.RegisterRequest
	notifies   chan alert.Notification
}

// newBot wires the channels connecting the three actors: BlockEvents flow
// ingestor→engine, RegisterRequests flow gateway→engine, Notifications
// flow engine→gateway. Each channel is unidirectional from the sender's
// point of view and carries values by move, per the ownership rules.
func newBot(st *store.Store, cfg daemonConfig) (*bot, error) {
	blockQueue := chanutil.NewUnboundedQueue[mempool.BlockEvent]()
	registers := make(chan alert.RegisterRequest)
	notifies := make(chan alert.Notification, 64)
	requests := make(chan alert.Request)

	engine := alert.New(st, notifies)

	ing := ingestor.New(ingestor.Config{
		ExplorerURL: cfg.Mempool.URL,
		Network:     cfg.Mempool.Network,
		Out:         blockQueue.In,
	})

	gw, err := relay.New(relay.Config{
		PrivateKeyHex: cfg.Nostr.PrivateKey,
		RelayURLs:     cfg.Nostr.Relays,
	}, requests, notifies, st)
	if err != nil {
		return nil, errors.Errorf("construct relay gateway: %v", err)
	}

	b := &bot{
		store:      st,
		engine:     engine,
		ingestor:   ing,
		gateway:    gw,
		blockQueue: blockQueue,
		registers:  registers,
		notifies:   notifies,
	}

	go b.bridgeRequests(requests)

	return b, nil
}

// bridgeRequests adapts the gateway's plain alert.Request channel into the
// engine's RegisterRequest/RegisterResult protocol, discarding the result
// (the gateway's synchronous reply to the user is already composed by the
// time the request is forwarded; registration failures are logged, not
// surfaced back over the relay, since a double round-trip isn't part of
// the command contract).
func (b *bot) bridgeRequests(requests <-chan alert.Request) {
	for req := range requests {
		result := make(chan alert.RegisterResult, 1)
		b.registers <- alert.RegisterRequest{Req: req, Result: result}
		if res := <-result; res.Err != nil {
			botLog.Warnf("registration from %s rejected: %v", req.Requestor, res.Err)
		}
	}
}

// run starts all three actors and the Postgres-backed gateway connection,
// and blocks until ctx is cancelled or any actor returns an error.
func (b *bot) run(ctx context.Context, cfg daemonConfig) error {
	if err := b.gateway.Connect(ctx, relay.Config{
		PrivateKeyHex: cfg.Nostr.PrivateKey,
		RelayURLs:     cfg.Nostr.Relays,
	}); err != nil {
		return errors.Errorf("connect relay gateway: %v", err)
	}
	defer b.gateway.Close()
	defer b.blockQueue.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.ingestor.Run(ctx)
	})
	g.Go(func() error {
		return b.engine.Run(ctx, b.blockQueue.Out, b.registers)
	})
	g.Go(func() error {
		return b.gateway.Run(ctx)
	})

	return g.Wait()
}
