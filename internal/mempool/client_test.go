package mempool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, withFees bool) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("800123"))
	})
	mux.HandleFunc("/api/blocks/tip/hash", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0000deadbeef"))
	})
	mux.HandleFunc("/api/block/0000deadbeef/txids", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["tx1","tx2"]`))
	})
	mux.HandleFunc("/api/v1/fees/recommended", func(w http.ResponseWriter, r *http.Request) {
		if !withFees {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"fastestFee":20,"halfHourFee":15,"hourFee":10,"economyFee":5,"minimumFee":1}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientBootstrapWithFees(t *testing.T) {
	srv := newTestServer(t, true)
	c := NewClient(srv.URL)

	event, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(800123), event.Tip.Height)
	require.Equal(t, "0000deadbeef", event.Tip.Hash)
	require.Equal(t, []string{"tx1", "tx2"}, event.Transactions)
	require.NotNil(t, event.Fees)
	require.Equal(t, 15.0, event.Fees.HalfHour)
}

func TestClientBootstrapFeesNotFound(t *testing.T) {
	srv := newTestServer(t, false)
	c := NewClient(srv.URL)

	event, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Nil(t, event.Fees)
}

func TestClientWebsocketURLMainnet(t *testing.T) {
	c := NewClient("https://mempool.space")
	url, err := c.WebsocketURL("")
	require.NoError(t, err)
	require.Equal(t, "wss://mempool.space/api/v1/ws", url)
}

func TestClientWebsocketURLTestnet(t *testing.T) {
	c := NewClient("https://mempool.space")
	url, err := c.WebsocketURL("testnet")
	require.NoError(t, err)
	require.Equal(t, "wss://mempool.space/testnet/api/v1/ws", url)
}
