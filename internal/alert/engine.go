// Package alert is the durable custodian of the subscription set: it
// persists registrations, evaluates every active subscription against each
// new block, and decides what to emit. It is the heaviest of the three
// actors, per the spec's budget split.
package alert

import (
	"context"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/blockwatch-bot/blockwatch/internal/mempool"
	"github.com/blockwatch-bot/blockwatch/internal/metrics"
)

var log = btclog.Disabled

// UseLogger installs logger as this package's logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// RegisterRequest couples an inbound Request with a channel the caller
// blocks on for the result, the same synchronous request/response-over-
// channel idiom the daemon has always used for cross-actor calls that need
// an answer (e.g. its historical RegisterLink/UnregisterLink messages).
type RegisterRequest struct {
	Req    Request
	Result chan<- RegisterResult
}

// RegisterResult is the outcome of a RegisterRequest.
type RegisterResult struct {
	Subscription *Subscription
	Err          error
}

// Engine implements the spec's Alert Engine actor.
type Engine struct {
	store     Store
	notifyOut chan<- Notification
}

// New constructs an Engine. notifyOut is the channel the Relay Gateway
// reads delivered Notifications from.
func New(store Store, notifyOut chan<- Notification) *Engine {
	return &Engine{store: store, notifyOut: notifyOut}
}

// Register validates and persists a new subscription. It is safe to call
// concurrently with Run/OnBlock: the store's Insert is a single-row insert
// independent of the evaluation pass's batched update.
func (e *Engine) Register(ctx context.Context, req Request) (*Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := e.store.Insert(ctx, req)
	if err != nil {
		return nil, errors.Errorf("persist subscription: %v", err)
	}

	log.Infof("registered subscription %d (%s) for %s", sub.ID, sub.Kind,
		sub.Requestor)

	return sub, nil
}

// OnBlock runs one evaluation pass over every active subscription against
// event. Per the spec's post-condition, every currently-active
// subscription either keeps its state, advances its state, or is marked
// inactive with exactly one Notification enqueued.
func (e *Engine) OnBlock(ctx context.Context, event mempool.BlockEvent) error {
	passID := uuid.New().String()
	metrics.EvaluationPasses.Inc()

	subs, err := e.store.LoadActive(ctx)
	if err != nil {
		if isTransient(err) {
			// Per the spec's "Transient database" policy: abort the pass
			// without emitting anything, the event is dropped and the
			// next one is evaluated fresh.
			log.Warnf("pass %s: transient error loading active subscriptions, dropping: %v",
				passID, err)
			return nil
		}
		return errors.Errorf("load active subscriptions: %v", err)
	}

	var (
		updated       []Subscription
		notifications []Notification
	)

	for _, sub := range subs {
		result := evaluate(sub, event)
		if !result.changed {
			continue
		}

		updated = append(updated, result.sub)

		if result.notify {
			notifications = append(notifications, Notification{
				SubscriptionID: result.sub.ID,
				Recipient:      result.sub.Requestor,
				Body:           renderBody(result.sub),
			})
		}
	}

	if len(updated) == 0 {
		log.Debugf("pass %s: block %d produced no subscription changes",
			passID, event.Tip.Height)
		return nil
	}

	if err := e.store.ApplyEvaluation(ctx, updated, notifications); err != nil {
		if isTransient(err) {
			log.Warnf("pass %s: transient error applying evaluation, dropping: %v",
				passID, err)
			return nil
		}
		return errors.Errorf("apply evaluation pass %s: %v", passID, err)
	}

	log.Infof("pass %s: block %d updated %d subscription(s), fired %d",
		passID, event.Tip.Height, len(updated), len(notifications))

	for _, n := range notifications {
		select {
		case e.notifyOut <- n:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Run is the Engine's cooperative task: it multiplexes BlockEvents from
// the Chain Ingestor and RegisterRequests from the Relay Gateway onto the
// same serial evaluation pass described above, the same "one select loop,
// many typed inbound arms, one quit arm" shape the daemon's htlc switch has
// always used for its own central dispatch loop. Per the spec, inbound
// requests and BlockEvents are not ordered relative to each other; each is
// individually transactional so the interleaving here is safe either way.
func (e *Engine) Run(ctx context.Context, blocks <-chan mempool.BlockEvent,
	requests <-chan RegisterRequest) error {

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-blocks:
			if !ok {
				blocks = nil
				continue
			}
			if err := e.OnBlock(ctx, event); err != nil {
				log.Errorf("evaluation pass failed: %v", err)
			}

		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			sub, err := e.Register(ctx, req.Req)
			select {
			case req.Result <- RegisterResult{Subscription: sub, Err: err}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
