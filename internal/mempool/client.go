package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

// defaultTimeout bounds every individual REST round-trip; the bootstrap
// sequence as a whole is bounded separately by the ingestor's retry
// schedule.
const defaultTimeout = 10 * time.Second

// Client is a thin REST client over the four explorer endpoints named in
// the spec. It holds no state beyond the configured base URL and an
// *http.Client, matching the minimal-surface REST clients the rest of the
// pack favors over a generated SDK.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client that issues requests against baseURL (e.g.
// "https://mempool.space"). A trailing slash on baseURL is trimmed.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// WebsocketURL derives the explorer's push-stream URL from the configured
// REST base URL. network is "" or "mainnet" for mainnet (the "{network}/"
// path segment is omitted, per the spec) or a network name such as
// "testnet"/"signet" otherwise.
func (c *Client) WebsocketURL(network string) (string, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")

	seg := ""
	if network != "" && network != "mainnet" {
		seg = network + "/"
	}

	return fmt.Sprintf("wss://%s/%sapi/v1/ws", host, seg), nil
}

// GetTipHeight fetches the current chain tip height.
func (c *Client) GetTipHeight(ctx context.Context) (uint64, error) {
	body, _, err := c.get(ctx, "/api/blocks/tip/height")
	if err != nil {
		return 0, err
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, errors.Errorf("malformed tip height %q: %v", body, err)
	}
	return height, nil
}

// GetTipHash fetches the current chain tip's hex-encoded block hash.
func (c *Client) GetTipHash(ctx context.Context) (string, error) {
	body, _, err := c.get(ctx, "/api/blocks/tip/hash")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// GetBlockTxIDs fetches the ordered transaction ids contained in the block
// identified by hash.
func (c *Client) GetBlockTxIDs(ctx context.Context, hash string) ([]string, error) {
	body, _, err := c.get(ctx, fmt.Sprintf("/api/block/%s/txids", hash))
	if err != nil {
		return nil, err
	}

	var txids []string
	if err := json.Unmarshal(body, &txids); err != nil {
		return nil, errors.Errorf("malformed txid list: %v", err)
	}
	return txids, nil
}

// GetRecommendedFees fetches the explorer's recommended-fee tuple. A 404 is
// treated as "unknown" per the spec and reported as (nil, nil) rather than
// an error, so the bootstrap sequence can still assemble a BlockEvent
// without fees.
func (c *Client) GetRecommendedFees(ctx context.Context) (*RecommendedFees, error) {
	body, status, err := c.get(ctx, "/api/v1/fees/recommended")
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var fees RecommendedFees
	if err := json.Unmarshal(body, &fees); err != nil {
		return nil, errors.Errorf("malformed fee payload: %v", err)
	}
	return &fees, nil
}

// Bootstrap performs the four-call startup sequence described in the spec
// and assembles the result into a BlockEvent. A 404 from the fee endpoint
// yields a BlockEvent with nil Fees; any other failure of any of the four
// calls, including a non-2xx fee status, fails the bootstrap.
func (c *Client) Bootstrap(ctx context.Context) (BlockEvent, error) {
	height, err := c.GetTipHeight(ctx)
	if err != nil {
		return BlockEvent{}, errors.Errorf("bootstrap tip height: %v", err)
	}

	hash, err := c.GetTipHash(ctx)
	if err != nil {
		return BlockEvent{}, errors.Errorf("bootstrap tip hash: %v", err)
	}

	txids, err := c.GetBlockTxIDs(ctx, hash)
	if err != nil {
		return BlockEvent{}, errors.Errorf("bootstrap txids: %v", err)
	}

	fees, err := c.GetRecommendedFees(ctx)
	if err != nil {
		return BlockEvent{}, errors.Errorf("bootstrap fees: %v", err)
	}

	return BlockEvent{
		Tip:          Tip{Height: height, Hash: hash},
		Transactions: txids,
		Fees:         fees,
	}, nil
}

// get issues a GET against baseURL+path and returns the response body and
// status code. Non-2xx responses other than the body's caller-interpreted
// meaning are surfaced as an error alongside the status code so callers
// like GetRecommendedFees can special-case 404.
func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Errorf("explorer request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Errorf("reading explorer response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, errors.Errorf(
			"explorer returned %d for %s", resp.StatusCode, path)
	}

	return body, resp.StatusCode, nil
}
