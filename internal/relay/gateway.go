// Package relay is the Relay Gateway actor: it holds the bot's long-term
// identity, maintains connections to a configured set of relays, parses
// inbound direct messages into alert.Request values, and encrypts/delivers
// outbound Notifications as direct messages to their original requestor.
package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
	"github.com/blockwatch-bot/blockwatch/internal/metrics"
)

var log = btclog.Disabled

// UseLogger installs logger as this package's logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// kindEncryptedDirectMessage is NIP-04's direct-message event kind.
const kindEncryptedDirectMessage = 4

// displayName and aboutText are published once at startup in the bot's
// metadata event, per the spec's Identity section.
const (
	displayName = "blockwatch"
	aboutText   = "Chain alert bot: /help for commands."
)

// Config configures the gateway's identity and relay set.
type Config struct {
	PrivateKeyHex string
	RelayURLs     []string
}

// MetadataStore tracks whether the one-time metadata event has already
// been published for a given identity, so a restart doesn't flood every
// configured relay with a duplicate kind-0 event.
type MetadataStore interface {
	HasPublishedMetadata(ctx context.Context, pubkey string) (bool, error)
	MarkMetadataPublished(ctx context.Context, pubkey string) error
}

// Gateway is the Relay Gateway actor.
type Gateway struct {
	privKey string
	pubKey  string
	relays  []*nostr.Relay

	requests  chan<- alert.Request
	notifyIn  <-chan alert.Notification
	startedAt nostr.Timestamp
	metadata  MetadataStore
}

// New validates cfg's private key and returns a Gateway that is not yet
// connected to any relay; call Connect to dial the configured relays.
// metadata may be nil, in which case the metadata event is published
// unconditionally on every Connect.
func New(cfg Config, requests chan<- alert.Request, notifyIn <-chan alert.Notification,
	metadata MetadataStore) (*Gateway, error) {

	pub, err := derivePublicKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, errors.Errorf("invalid identity key: %v", err)
	}

	return &Gateway{
		privKey:  cfg.PrivateKeyHex,
		pubKey:   pub,
		requests: requests,
		notifyIn: notifyIn,
		metadata: metadata,
	}, nil
}

// derivePublicKey validates that keyHex decodes to a valid secp256k1
// scalar before it's handed to go-nostr, so a malformed key fails fast at
// startup instead of surfacing as an opaque signing error later.
func derivePublicKey(keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", errors.Errorf("private key is not valid hex: %v", err)
	}
	if len(raw) != 32 {
		return "", errors.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	// PrivKeyFromBytes reduces modulo the curve order, so a key that is
	// zero or not below the order fails this round-trip check.
	priv, pub := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() || !bytes.Equal(priv.Serialize(), raw) {
		return "", errors.Errorf("private key is not a valid secp256k1 scalar")
	}
	return hex.EncodeToString(pub.SerializeCompressed()[1:]), nil
}

// Connect dials every configured relay and publishes the one-time
// metadata event. It must be called before Run.
func (g *Gateway) Connect(ctx context.Context, cfg Config) error {
	g.startedAt = nostr.Timestamp(time.Now().Unix())

	for _, url := range cfg.RelayURLs {
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			return errors.Errorf("connect to relay %s: %v", url, err)
		}
		g.relays = append(g.relays, r)
	}
	if len(g.relays) == 0 {
		return errors.Errorf("no relays configured")
	}

	return g.publishMetadata(ctx)
}

// publishMetadata announces the bot's identity once at startup, skipping
// the publish on a restart if this identity has already announced itself
// (avoids flooding every configured relay with a duplicate kind-0 event).
func (g *Gateway) publishMetadata(ctx context.Context) error {
	if g.metadata != nil {
		published, err := g.metadata.HasPublishedMetadata(ctx, g.pubKey)
		if err != nil {
			return errors.Errorf("check metadata publish state: %v", err)
		}
		if published {
			return nil
		}
	}

	event := nostr.Event{
		PubKey:    g.pubKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostr.KindProfileMetadata,
		Content:   fmt.Sprintf(`{"name":%q,"about":%q}`, displayName, aboutText),
	}
	if err := event.Sign(g.privKey); err != nil {
		return errors.Errorf("sign metadata event: %v", err)
	}

	for _, r := range g.relays {
		if err := r.Publish(ctx, event); err != nil {
			log.Warnf("publish metadata to %s: %v", r.URL, err)
		}
	}

	if g.metadata != nil {
		if err := g.metadata.MarkMetadataPublished(ctx, g.pubKey); err != nil {
			log.Warnf("record metadata publish: %v", err)
		}
	}
	return nil
}

// Run drives the gateway's two cooperative tasks — the inbound listener
// and the outbound sender — grounded on the split between a read arm and
// a write arm that processes a shared outbound queue. It returns when ctx
// is cancelled or either task fails.
func (g *Gateway) Run(ctx context.Context) error {
	events := make(chan *nostr.Event, 64)
	errCh := make(chan error, 2)

	for _, r := range g.relays {
		go g.listenOn(ctx, r, events, errCh)
	}

	go func() {
		errCh <- g.inboundArm(ctx, events)
	}()
	go func() {
		errCh <- g.outboundArm(ctx)
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// listenOn subscribes to r for direct messages addressed to the bot and
// forwards every delivered event onto events until ctx is cancelled.
func (g *Gateway) listenOn(ctx context.Context, r *nostr.Relay, events chan<- *nostr.Event, errCh chan<- error) {
	sub, err := r.Subscribe(ctx, nostr.Filters{{
		Kinds: []int{kindEncryptedDirectMessage},
		Tags:  nostr.TagMap{"p": []string{g.pubKey}},
		Since: &g.startedAt,
	}})
	if err != nil {
		errCh <- errors.Errorf("subscribe on %s: %v", r.URL, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// inboundArm is the read arm: it decrypts each inbound direct message,
// parses it into a Command, and composes a synchronous reply, separately
// from forwarding any successfully parsed registration upstream.
func (g *Gateway) inboundArm(ctx context.Context, events <-chan *nostr.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			g.handleInbound(ctx, ev)
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, ev *nostr.Event) {
	sharedSecret, err := nip04.ComputeSharedSecret(ev.PubKey, g.privKey)
	if err != nil {
		log.Warnf("compute shared secret for %s: %v", ev.PubKey, err)
		return
	}

	body, err := nip04.Decrypt(ev.Content, sharedSecret)
	if err != nil {
		log.Warnf("decrypt message from %s: %v", ev.PubKey, err)
		return
	}

	cmd := ParseCommand(body)
	reply, req := renderReply(ev.PubKey, cmd)

	if req != nil {
		select {
		case g.requests <- *req:
		case <-ctx.Done():
			return
		}
	}

	if err := g.send(ctx, ev.PubKey, reply); err != nil {
		log.Errorf("reply to %s: %v", ev.PubKey, err)
	}
}

// renderReply turns a parsed Command into the synchronous reply text and,
// for a successfully parsed registration command, the alert.Request to
// forward to the engine.
func renderReply(requestor string, cmd Command) (string, *alert.Request) {
	switch cmd.Kind {
	case CmdHelp:
		return HelpText, nil

	case CmdBlockHeight:
		n, err := parseArgs1(cmd.Args)
		if err != nil {
			return invalidCommandReply, nil
		}
		req := alert.Request{Kind: alert.BlockHeight, Requestor: requestor, Threshold: n}
		if err := req.Validate(); err != nil {
			return invalidValueReply(err), nil
		}
		return "Registered: " + renderRequestSummary(req), &req

	case CmdFees:
		n, err := parseArgs1(cmd.Args)
		if err != nil {
			return invalidCommandReply, nil
		}
		req := alert.Request{Kind: alert.FeeLevel, Requestor: requestor, Threshold: n}
		if err := req.Validate(); err != nil {
			return invalidValueReply(err), nil
		}
		return "Registered: " + renderRequestSummary(req), &req

	case CmdTransaction:
		if len(cmd.Args) != 2 {
			return invalidCommandReply, nil
		}
		n, err := strconv.ParseFloat(cmd.Args[1], 64)
		if err != nil {
			return invalidCommandReply, nil
		}
		req := alert.Request{
			Kind:              alert.ConfirmHeight,
			Requestor:         requestor,
			Threshold:         n,
			WatchedIdentifier: cmd.Args[0],
		}
		if err := req.Validate(); err != nil {
			return invalidValueReply(err), nil
		}
		return "Registered: " + renderRequestSummary(req), &req

	default:
		return invalidCommandReply, nil
	}
}

const invalidCommandReply = "Invalid command, send /help to see all commands."

// invalidValueReply turns a Request validation failure into the
// human-readable reply the spec's Validation error policy requires,
// instead of optimistically acking a request the engine will reject.
func invalidValueReply(err error) string {
	return "Invalid command: " + err.Error()
}

func parseArgs1(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, errors.Errorf("expected exactly one argument, got %d", len(args))
	}
	return strconv.ParseFloat(args[0], 64)
}

func renderRequestSummary(req alert.Request) string {
	switch req.Kind {
	case alert.BlockHeight:
		return fmt.Sprintf("notify at block height %.0f", req.Threshold)
	case alert.FeeLevel:
		return fmt.Sprintf("notify when half-hour fee drops to %.1f sat/vB", req.Threshold)
	case alert.ConfirmHeight:
		return fmt.Sprintf("notify when %s reaches %.0f confirmations", req.WatchedIdentifier, req.Threshold)
	default:
		return "registered"
	}
}

// outboundArm is the write arm: it drains the Notification channel fed by
// the engine and delivers each as an encrypted direct message.
func (g *Gateway) outboundArm(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-g.notifyIn:
			if !ok {
				return nil
			}
			if err := g.send(ctx, n.Recipient, n.Body); err != nil {
				// Per the spec's failure semantics, a send failure is
				// surfaced as a recoverable error, not a dropped
				// notification; the durable log row already exists.
				metrics.NotificationsFailed.Inc()
				log.Errorf("deliver notification %d to %s: %v", n.ID, n.Recipient, err)
			} else {
				metrics.NotificationsSent.Inc()
			}
		}
	}
}

// send encrypts body under recipientPubkey and the bot's private key and
// publishes it as a direct message to every connected relay.
func (g *Gateway) send(ctx context.Context, recipientPubkey, body string) error {
	sharedSecret, err := nip04.ComputeSharedSecret(recipientPubkey, g.privKey)
	if err != nil {
		return errors.Errorf("compute shared secret: %v", err)
	}

	ciphertext, err := nip04.Encrypt(body, sharedSecret)
	if err != nil {
		return errors.Errorf("encrypt direct message: %v", err)
	}

	event := nostr.Event{
		PubKey:    g.pubKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kindEncryptedDirectMessage,
		Tags:      nostr.Tags{{"p", recipientPubkey}},
		Content:   ciphertext,
	}
	if err := event.Sign(g.privKey); err != nil {
		return errors.Errorf("sign direct message: %v", err)
	}

	var lastErr error
	sent := false
	for _, r := range g.relays {
		if err := r.Publish(ctx, event); err != nil {
			lastErr = err
			continue
		}
		sent = true
	}
	if !sent {
		return errors.Errorf("publish to all relays failed: %v", lastErr)
	}
	return nil
}

// Close disconnects every relay connection.
func (g *Gateway) Close() {
	for _, r := range g.relays {
		r.Close()
	}
}
