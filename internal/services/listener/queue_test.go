package listener

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pglisten/internal/domain/notify"
)

func note(channel, payload string) notify.Notification {
	return notify.Notification{Channel: channel, Payload: payload}
}

func TestQueueAllKeepsArrivalOrder(t *testing.T) {
	q := newQueue(notify.ListenAll)

	q.push(note("c", "1"))
	q.push(note("c", "2"))
	q.push(note("c", "3"))

	for _, want := range []string{"1", "2", "3"} {
		n, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, want, n.Payload)
	}

	_, ok := q.pop()
	require.False(t, ok)
}

func TestQueueLastOverwritesPendingSlot(t *testing.T) {
	q := newQueue(notify.ListenLast)

	q.push(note("c", "1"))
	q.push(note("c", "2"))
	q.push(note("c", "3"))

	n, ok := q.pop()
	require.True(t, ok)
	require.Equal(t, "3", n.Payload)

	_, ok = q.pop()
	require.False(t, ok)
}

func TestQueueWakeSignalCoalesces(t *testing.T) {
	q := newQueue(notify.ListenAll)

	q.push(note("c", "1"))
	q.push(note("c", "2"))

	// Two pushes may leave a single wake signal; the reader drains
	// everything regardless.
	<-q.wake
	select {
	case <-q.wake:
	default:
	}

	_, ok := q.pop()
	require.True(t, ok)
	_, ok = q.pop()
	require.True(t, ok)
	_, ok = q.pop()
	require.False(t, ok)
}
