package video

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halolljr/goplay/pkg/clock"
	"github.com/halolljr/goplay/pkg/decode"
)

func newTestLoop(maxFrameDuration float64) *Loop {
	ctrl := clock.NewController(clock.New(nil), clock.New(nil), clock.New(nil), true, true)
	return NewLoop(LoopOptions{
		Video:            decode.NewVideoFrameQueue(func() bool { return false }),
		Controller:       ctrl,
		MaxFrameDuration: maxFrameDuration,
	})
}

func TestFrameDurationZeroAcrossSerialDiscontinuity(t *testing.T) {
	l := newTestLoop(1.0)
	cur := decode.Frame{Pts: 5.0, Serial: 1, Duration: 0.04}
	next := decode.Frame{Pts: 5.04, Serial: 2, Duration: 0.04}
	require.Equal(t, 0.0, l.frameDuration(cur, next))
}

func TestFrameDurationUsesPtsDeltaWithinSameSerial(t *testing.T) {
	l := newTestLoop(1.0)
	cur := decode.Frame{Pts: 5.0, Serial: 1, Duration: 0.04}
	next := decode.Frame{Pts: 5.04, Serial: 1, Duration: 0.04}
	require.InDelta(t, 0.04, l.frameDuration(cur, next), 1e-9)
}

func TestFrameDurationFallsBackToLastDurationOnBadDelta(t *testing.T) {
	l := newTestLoop(1.0)
	cur := decode.Frame{Pts: 5.0, Serial: 1, Duration: 0.04}
	negative := decode.Frame{Pts: 4.0, Serial: 1, Duration: 0.04}
	require.InDelta(t, 0.04, l.frameDuration(cur, negative), 1e-9)

	tooLarge := decode.Frame{Pts: 10.0, Serial: 1, Duration: 0.04}
	require.InDelta(t, 0.04, l.frameDuration(cur, tooLarge), 1e-9)
}

func TestShouldDropDefersToControllerWithComputedDuration(t *testing.T) {
	l := newTestLoop(1.0)
	cur := decode.Frame{Pts: 5.0, Serial: 1, Duration: 0.04}
	next := decode.Frame{Pts: 5.04, Serial: 1, Duration: 0.04}

	// Master defaults to audio (hasAudio=true), so ShouldDropFrame can
	// say yes once wall time has advanced past frameTimer+duration and
	// more than one frame is queued; here queuedFrames is 0 so it can't.
	require.False(t, l.shouldDrop(cur, next, 100.0))
}
