package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketSizeDurationNilSafe(t *testing.T) {
	p := Packet{}
	require.Equal(t, 0, p.Size())
	require.Equal(t, int64(0), p.Duration())
}

func TestPacketQueueStartsAtSerialZero(t *testing.T) {
	q := NewPacketQueue()
	require.Equal(t, uint64(0), q.Serial())
}
