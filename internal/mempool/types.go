// Package mempool talks to an external block explorer service (the
// "mempool.space"-shaped REST and websocket API named in the spec) and
// normalizes its output into the typed events the rest of the bot consumes.
package mempool

// Tip identifies the current chain head as reported by the explorer.
type Tip struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

// RecommendedFees is the explorer's recommended-fee tuple. All five rates
// are expressed in sat/vByte; the spec treats them as rationals so that a
// FeeLevel subscription's threshold can be compared directly.
type RecommendedFees struct {
	Fastest  float64 `json:"fastestFee"`
	HalfHour float64 `json:"halfHourFee"`
	Hour     float64 `json:"hourFee"`
	Economy  float64 `json:"economyFee"`
	Minimum  float64 `json:"minimumFee"`
}

// BlockEvent is the normalized "new block observed" message the Ingestor
// hands to the Alert Engine. Transactions may be nil when the upstream
// payload carried no txid list for this block; Fees may be nil when the
// explorer's fee endpoint returned "not found".
type BlockEvent struct {
	Tip          Tip
	Transactions []string
	Fees         *RecommendedFees
}

// ContainsTxID reports whether txid appears in this block's transaction
// list. A nil or empty list never contains anything.
func (e BlockEvent) ContainsTxID(txid string) bool {
	for _, id := range e.Transactions {
		if id == txid {
			return true
		}
	}
	return false
}

// mempoolRaw is the explorer's push-stream envelope. A single frame may
// carry one block under "block" or several under "blocks"; per the spec,
// when both are present the newest block is the last element of "blocks".
type mempoolRaw struct {
	Block  *rawBlock          `json:"block,omitempty"`
	Blocks []rawBlock         `json:"blocks,omitempty"`
	Fees   *RecommendedFees   `json:"fees,omitempty"`
}

type rawBlock struct {
	Height uint64   `json:"height"`
	ID     string   `json:"id"`
	TxIDs  []string `json:"txids,omitempty"`
}

// latestBlock extracts the single newest block from a raw frame, or false
// if the frame carried no block payload at all.
func (r mempoolRaw) latestBlock() (rawBlock, bool) {
	if n := len(r.Blocks); n > 0 {
		return r.Blocks[n-1], true
	}
	if r.Block != nil {
		return *r.Block, true
	}
	return rawBlock{}, false
}

// toBlockEvent converts a raw push-stream frame into a BlockEvent. It
// returns false when the frame carried no block at all (e.g. a bare fee
// update or an unrecognized control frame), in which case the caller
// should not emit anything.
func (r mempoolRaw) toBlockEvent() (BlockEvent, bool) {
	blk, ok := r.latestBlock()
	if !ok {
		return BlockEvent{}, false
	}

	return BlockEvent{
		Tip: Tip{
			Height: blk.Height,
			Hash:   blk.ID,
		},
		Transactions: blk.TxIDs,
		Fees:         r.Fees,
	}, true
}
