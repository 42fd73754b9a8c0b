package chanutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnboundedQueueDoesNotBlockSender(t *testing.T) {
	q := NewUnboundedQueue[int]()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.In <- i
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender blocked on an unread queue")
	}

	for i := 0; i < 100; i++ {
		select {
		case v := <-q.Out:
			require.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("missing value %d", i)
		}
	}
}
