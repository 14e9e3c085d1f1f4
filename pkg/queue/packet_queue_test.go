package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePacket struct {
	size int
	dur  int64
}

func (p fakePacket) Size() int      { return p.size }
func (p fakePacket) Duration() int64 { return p.dur }

func TestPacketQueuePutGet(t *testing.T) {
	q := NewPacketQueue[fakePacket]()
	require.True(t, q.Put(0, fakePacket{size: 10, dur: 5}))
	require.EqualValues(t, 10, q.Size())
	require.EqualValues(t, 5, q.Duration())

	r := q.Get(true)
	require.False(t, r.Aborted)
	require.Equal(t, KindData, r.Item.Kind)
	require.EqualValues(t, 0, q.Size())
}

func TestPacketQueueFlushIncrementsSerial(t *testing.T) {
	q := NewPacketQueue[fakePacket]()
	require.EqualValues(t, 0, q.Serial())
	require.True(t, q.Put(0, fakePacket{size: 1}))
	require.True(t, q.PutFlush())
	require.EqualValues(t, 1, q.Serial())

	first := q.Get(true)
	require.Equal(t, KindData, first.Item.Kind)
	require.EqualValues(t, 0, first.Item.Serial)

	second := q.Get(true)
	require.Equal(t, KindFlush, second.Item.Kind)
	require.EqualValues(t, 1, second.Item.Serial)

	// Packets enqueued after the flush carry the new serial.
	require.True(t, q.Put(0, fakePacket{size: 1}))
	third := q.Get(true)
	require.EqualValues(t, 1, third.Item.Serial)
}

func TestPacketQueueAbortUnblocksImmediately(t *testing.T) {
	q := NewPacketQueue[fakePacket]()
	done := make(chan GetResult[fakePacket], 1)
	go func() { done <- q.Get(true) }()
	q.Abort()
	r := <-done
	require.True(t, r.Aborted)

	require.False(t, q.Put(0, fakePacket{size: 1}))
	require.False(t, q.PutFlush())
	require.False(t, q.PutNull(0))
}

func TestPacketQueueGetNonBlockingEmpty(t *testing.T) {
	q := NewPacketQueue[fakePacket]()
	r := q.Get(false)
	require.True(t, r.Empty)
	require.False(t, r.Aborted)
}

func TestPacketQueueStartClearsAbort(t *testing.T) {
	q := NewPacketQueue[fakePacket]()
	q.Abort()
	require.True(t, q.Aborted())
	q.Start()
	require.False(t, q.Aborted())
	require.True(t, q.Put(0, fakePacket{size: 1}))
}

func TestGlobalReady(t *testing.T) {
	a := NewPacketQueue[fakePacket]()
	b := NewPacketQueue[fakePacket]()
	require.False(t, GlobalReady(a, b))
	require.True(t, a.Put(0, fakePacket{size: GlobalByteCap + 1}))
	require.True(t, GlobalReady(a, b))
}
