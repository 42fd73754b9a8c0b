// Package ingestor bridges the explorer's REST bootstrap and websocket push
// stream into a clean, typed, deduplicated stream of mempool.BlockEvents.
package ingestor

import (
	"context"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-errors/errors"

	"github.com/blockwatch-bot/blockwatch/internal/mempool"
	"github.com/blockwatch-bot/blockwatch/internal/metrics"
)

// log is this package's tagged logger; the zero value is btclog.Disabled so
// the package is silent until the daemon wires a real backend via
// UseLogger.
var log = btclog.Disabled

// ErrFatalBootstrap wraps a bootstrap failure that survived the bounded
// retry schedule, distinguishing it from the reconnect path's unbounded
// backoff (which never itself returns an error to the caller).
type ErrFatalBootstrap struct{ cause error }

func (e ErrFatalBootstrap) Error() string { return "bootstrap failed: " + e.cause.Error() }
func (e ErrFatalBootstrap) Unwrap() error { return e.cause }

// UseLogger installs logger as this package's logger, called once from the
// daemon's log.go during init.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// state is the ingestor's connection state machine, logged on every
// transition per the spec.
type state int

const (
	stateBootstrapping state = iota
	stateConnecting
	stateStreaming
	stateReconnecting
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateBootstrapping:
		return "bootstrapping"
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateReconnecting:
		return "reconnecting"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config configures the Ingestor.
type Config struct {
	// ExplorerURL is the explorer's REST base URL, e.g.
	// "https://mempool.space".
	ExplorerURL string

	// Network selects the websocket path segment; empty means mainnet.
	Network string

	// Out is the channel BlockEvents are delivered on. The ingestor never
	// closes it; closing is the daemon's responsibility once all actors
	// have stopped.
	Out chan<- mempool.BlockEvent
}

// Ingestor implements the spec's Chain Ingestor actor.
type Ingestor struct {
	cfg    Config
	client *mempool.Client

	lastHeight uint64
	haveLast   bool
}

// New constructs an Ingestor from cfg.
func New(cfg Config) *Ingestor {
	return &Ingestor{
		cfg:    cfg,
		client: mempool.NewClient(cfg.ExplorerURL),
	}
}

// Run is the Ingestor's single public operation. It completes only when ctx
// is cancelled (returning nil) or a fatal bootstrap error occurs (returning
// non-nil after the bounded retry schedule below is exhausted).
func (in *Ingestor) Run(ctx context.Context) error {
	if err := in.bootstrap(ctx); err != nil {
		return err
	}

	wsURL, err := in.client.WebsocketURL(in.cfg.Network)
	if err != nil {
		return errors.Errorf("derive websocket url: %v", err)
	}

	backoffPolicy := newReconnectBackoff()

	st := stateConnecting
	logTransition(st)

	connectedBefore := false

	for {
		select {
		case <-ctx.Done():
			logTransition(stateTerminated)
			return nil
		default:
		}

		stream, err := mempool.DialStream(ctx, wsURL)
		if err != nil {
			if ctx.Err() != nil {
				logTransition(stateTerminated)
				return nil
			}

			wait := backoffPolicy.NextBackOff()
			log.Errorf("unable to connect to explorer stream: %v "+
				"(retrying in %s)", err, wait)

			st = stateReconnecting
			logTransition(st)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				logTransition(stateTerminated)
				return nil
			}
			continue
		}

		st = stateStreaming
		logTransition(st)
		if connectedBefore {
			metrics.WebsocketReconnects.Inc()
		}
		connectedBefore = true
		backoffPolicy.Reset()

		in.drain(ctx, stream)

		if ctx.Err() != nil {
			logTransition(stateTerminated)
			return nil
		}

		st = stateReconnecting
		logTransition(st)
	}
}

// drain runs one websocket session to completion, forwarding deduplicated
// BlockEvents to the configured output channel.
func (in *Ingestor) drain(ctx context.Context, stream *mempool.StreamClient) {
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		if err := stream.Run(ctx); err != nil {
			log.Errorf("explorer stream session ended: %v", err)
		}
	}()

	for {
		select {
		case event, ok := <-stream.Events():
			if !ok {
				<-sessionDone
				return
			}
			in.emit(ctx, event)
		case <-ctx.Done():
			stream.Close()
			<-sessionDone
			return
		}
	}
}

// emit applies the reorg/duplicate policy and forwards the event if it
// represents forward progress.
func (in *Ingestor) emit(ctx context.Context, event mempool.BlockEvent) {
	if in.haveLast && event.Tip.Height <= in.lastHeight {
		log.Debugf("dropping stale/duplicate block at height %d "+
			"(last emitted %d)", event.Tip.Height, in.lastHeight)
		return
	}

	in.lastHeight = event.Tip.Height
	in.haveLast = true
	metrics.BlocksIngested.Inc()

	select {
	case in.cfg.Out <- event:
	case <-ctx.Done():
	}
}

// bootstrap performs the one-time REST bootstrap read described in the
// spec, with a bounded retry schedule before surfacing a fatal error.
func (in *Ingestor) bootstrap(ctx context.Context) error {
	logTransition(stateBootstrapping)

	const maxAttempts = 5
	policy := backoff.WithMaxRetries(newReconnectBackoff(), maxAttempts-1)

	var event mempool.BlockEvent
	err := backoff.Retry(func() error {
		var bErr error
		event, bErr = in.client.Bootstrap(ctx)
		return bErr
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return ErrFatalBootstrap{cause: err}
	}

	in.emit(ctx, event)
	return nil
}

func newReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // never give up on reconnects, only on bootstrap
	return b
}

func logTransition(s state) {
	log.Infof("ingestor transitioning to state: %s", s)
}
