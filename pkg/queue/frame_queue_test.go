package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	serial uint64
	n      int
}

func (f fakeFrame) QueueSerial() uint64 { return f.serial }

func TestFrameQueuePushPeekNext(t *testing.T) {
	q := NewFrameQueue[fakeFrame](3, false, nil)
	require.True(t, q.PeekWritable())
	q.Push(fakeFrame{n: 1})
	require.True(t, q.PeekWritable())
	q.Push(fakeFrame{n: 2})

	f, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, 1, f.n)

	n, ok := q.PeekNext()
	require.True(t, ok)
	require.Equal(t, 2, n.n)

	q.Next()
	f, ok = q.Peek()
	require.True(t, ok)
	require.Equal(t, 2, f.n)
}

func TestFrameQueueKeepLastPreservesOneExtraNext(t *testing.T) {
	q := NewFrameQueue[fakeFrame](3, true, nil)
	q.PeekWritable()
	q.Push(fakeFrame{n: 1})
	q.PeekWritable()
	q.Push(fakeFrame{n: 2})

	f, ok := q.PeekReadable()
	require.True(t, ok)
	require.Equal(t, 1, f.n)

	q.Next() // marks rindexShown, does not advance rindex
	last, ok := q.PeekLast()
	require.True(t, ok)
	require.Equal(t, 1, last.n)

	f, ok = q.PeekReadable()
	require.True(t, ok)
	require.Equal(t, 2, f.n)

	q.Next() // now actually advances
	require.Equal(t, 0, q.NbRemaining())
}

func TestFrameQueueAbortUnblocksPeekReadable(t *testing.T) {
	aborted := make(chan struct{})
	q := NewFrameQueue[fakeFrame](2, false, func() bool {
		select {
		case <-aborted:
			return true
		default:
			return false
		}
	})
	done := make(chan bool, 1)
	go func() {
		_, ok := q.PeekReadable()
		done <- ok
	}()
	close(aborted)
	q.Signal()
	ok := <-done
	require.False(t, ok)
}
