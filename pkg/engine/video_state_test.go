package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewVideoStateDefaults(t *testing.T) {
	vs := newVideoState()
	require.Equal(t, 1.0, vs.Volume())
	require.Equal(t, 1.0, vs.PlaybackRate())
	require.False(t, vs.Paused())
}

func TestSetVolumeClampsToUnitRange(t *testing.T) {
	vs := newVideoState()
	vs.SetVolume(-0.5)
	require.Equal(t, 0.0, vs.Volume())
	vs.SetVolume(1.5)
	require.Equal(t, 1.0, vs.Volume())
	vs.SetVolume(0.42)
	require.InDelta(t, 0.42, vs.Volume(), 1e-9)
}

func TestCyclePlaybackRateAdvancesAndWraps(t *testing.T) {
	vs := newVideoState()
	require.Equal(t, 1.0, vs.PlaybackRate())

	r := vs.CyclePlaybackRate()
	require.InDelta(t, 1.25, r, 1e-9)

	for r < 3.0 {
		r = vs.CyclePlaybackRate()
	}
	require.InDelta(t, 3.0, r, 1e-9)

	r = vs.CyclePlaybackRate()
	require.InDelta(t, playbackRates[0], r, 1e-9)
}

func TestSetPausedIsSafeWithoutClocks(t *testing.T) {
	vs := newVideoState()
	require.NotPanics(t, func() { vs.SetPaused(true) })
	require.True(t, vs.Paused())
}

func TestRequestSeekEntersRequestedState(t *testing.T) {
	vs := newVideoState()
	vs.RequestSeek(12.5, 0)

	vs.seekMu.Lock()
	state, pos := vs.seekState, vs.seekPos
	vs.seekMu.Unlock()

	require.Equal(t, SeekRequested, state)
	require.InDelta(t, 12.5, pos, 1e-9)
}

func TestAbortIsSafeWithNoQueuesOpened(t *testing.T) {
	vs := newVideoState()
	require.NotPanics(t, vs.Abort)
	require.True(t, vs.abort.Load())
}

func TestAudioVideoSerialDefaultToZeroWithoutQueues(t *testing.T) {
	vs := newVideoState()
	require.Equal(t, uint64(0), vs.audioSerial())
	require.Equal(t, uint64(0), vs.videoSerial())
}
