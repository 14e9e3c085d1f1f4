package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameQueueSerial(t *testing.T) {
	f := Frame{Serial: 7}
	require.Equal(t, uint64(7), f.QueueSerial())
}

func TestFrameQueueConstructorsAllowOneWriteImmediately(t *testing.T) {
	abort := func() bool { return false }
	for _, q := range []*FrameQueue{
		NewVideoFrameQueue(abort),
		NewAudioFrameQueue(abort),
		NewSubtitleFrameQueue(abort),
	} {
		require.True(t, q.PeekWritable())
	}
}
