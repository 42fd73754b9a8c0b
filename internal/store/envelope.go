package store

import (
	"encoding/json"

	"github.com/go-errors/errors"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
)

// stateEnvelopeVersion is bumped whenever alert.State's on-disk shape
// changes. Per the spec's §9 design note, block_state is never treated as
// an opaque blob: it is a versioned value object checked on read so a
// future field addition can be detected instead of silently
// misinterpreted.
const stateEnvelopeVersion = 1

type stateEnvelope struct {
	Version int         `json:"version"`
	State   alert.State `json:"state"`
}

func encodeState(s alert.State) ([]byte, error) {
	return json.Marshal(stateEnvelope{Version: stateEnvelopeVersion, State: s})
}

func decodeState(raw []byte) (alert.State, error) {
	if len(raw) == 0 {
		return alert.State{}, nil
	}

	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return alert.State{}, errors.Errorf("decode block_state: %v", err)
	}
	if env.Version > stateEnvelopeVersion {
		return alert.State{}, errors.Errorf(
			"block_state version %d is newer than this binary understands (%d)",
			env.Version, stateEnvelopeVersion)
	}

	return env.State, nil
}
