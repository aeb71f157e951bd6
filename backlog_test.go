package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBacklogWithTimeoutExpires(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	stop := runReactor(t, r)
	defer stop()

	type item struct{ id int }

	expired := make(chan int, 4)
	var timeOf func(item) time.Time
	added := make(chan struct{})

	require.True(t, ok(r.ExecuteOnLoopThread(func() {
		start := r.now()
		timeOf = func(it item) time.Time { return start }
		backlog := NewBacklogWithTimeout[item](r, 100, func(it item) {
			expired <- it.id
		}, timeOf, nil)
		backlog.AddItem(item{id: 1})
		backlog.AddItem(item{id: 2})
		close(added)
	})))
	await(t, added, time.Second, "items added")

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-expired:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 expirations, got %d", i)
		}
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
}
