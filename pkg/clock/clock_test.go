package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockSetAndGetAdvancesWithWallTime(t *testing.T) {
	c := New(nil)
	c.Set(10, 0)
	time.Sleep(20 * time.Millisecond)
	got := c.Get()
	require.GreaterOrEqual(t, got, 10.0)
	require.Less(t, got, 10.5)
}

func TestClockPausedFreezesValue(t *testing.T) {
	c := New(nil)
	c.Set(5, 0)
	c.SetPaused(true)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 5.0, c.Get())
}

func TestClockUndefinedWhenSerialStale(t *testing.T) {
	serial := uint64(0)
	c := New(func() uint64 { return serial })
	c.Set(1, 0)
	require.False(t, math.IsNaN(c.Get()))
	serial = 1
	require.True(t, math.IsNaN(c.Get()))
}

func TestControllerMasterSelection(t *testing.T) {
	a, v, e := New(nil), New(nil), New(nil)
	require.Equal(t, MasterAudio, NewController(a, v, e, true, true).Master())
	require.Equal(t, MasterVideo, NewController(a, v, e, false, true).Master())
	require.Equal(t, MasterExternal, NewController(a, v, e, false, false).Master())
}

func TestTargetDelayShortensWhenVideoBehind(t *testing.T) {
	a, v, e := New(nil), New(nil), New(nil)
	a.Set(5, 0) // master (audio) far ahead
	v.Set(0, 0)
	ctrl := NewController(a, v, e, true, true)
	d := ctrl.TargetDelay(0.04, 10)
	require.Equal(t, 0.0, d)
}

func TestTargetDelayDuplicatesWhenVideoAhead(t *testing.T) {
	a, v, e := New(nil), New(nil), New(nil)
	a.Set(0, 0)
	v.Set(5, 0) // video way ahead of master
	ctrl := NewController(a, v, e, true, true)
	d := ctrl.TargetDelay(0.04, 10)
	require.Equal(t, 0.08, d)
}

func TestShouldDropFrameOnlyWhenMasterIsNotVideo(t *testing.T) {
	a, v, e := New(nil), New(nil), New(nil)
	ctrl := NewController(a, v, e, false, true) // master=video
	require.False(t, ctrl.ShouldDropFrame(100, 0, 0.01, 5))

	ctrl2 := NewController(a, v, e, true, true) // master=audio
	require.True(t, ctrl2.ShouldDropFrame(100, 0, 0.01, 5))
	require.False(t, ctrl2.ShouldDropFrame(100, 0, 0.01, 1)) // only one frame queued
}
