//go:build integration

package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
)

func mustParsePort(s string) uint16 {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		panic(err)
	}
	return uint16(n)
}

// newTestStore spins up an ephemeral Postgres container via dockertest,
// applies migrations against it, and returns a ready Store. This file
// carries the "integration" build tag, the same pattern the daemon has
// historically used to keep tests that need a real external dependency
// out of the default `go test ./...` run.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=blockwatch",
			"POSTGRES_DB=blockwatch",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := Config{
		Host:         "localhost",
		Port:         mustParsePort(resource.GetPort("5432/tcp")),
		Username:     "postgres",
		Password:     "blockwatch",
		DatabaseName: "blockwatch",
	}

	var s *Store
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var openErr error
		s, openErr = Open(ctx, cfg)
		return openErr
	})
	require.NoError(t, err)

	return s
}

func TestStoreRegisterAndEvaluateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	sub, err := s.Insert(ctx, alert.Request{
		Kind:      alert.BlockHeight,
		Requestor: "pk1",
		Threshold: 100,
	})
	require.NoError(t, err)

	active, err := s.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, sub.ID, active[0].ID)

	fired := active[0]
	fired.Active = false
	fired.State = alert.State{BlockTip: fired.State.BlockTip}

	err = s.ApplyEvaluation(ctx, []alert.Subscription{fired}, []alert.Notification{{
		SubscriptionID: fired.ID,
		Recipient:      fired.Requestor,
		Body:           "reached",
	}})
	require.NoError(t, err)

	after, err := s.LoadActive(ctx)
	require.NoError(t, err)
	require.Empty(t, after)
}
