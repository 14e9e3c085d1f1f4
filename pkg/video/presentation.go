// Package video implements the Presentation Loop of spec §4.6, the
// display-rect computation of §4.6.1, and bitmap subtitle compositing,
// built on pkg/host's SDL renderer and go-astiav's swscale bindings for
// pixel-format conversion.
package video

import (
	"context"
	"math"
	"time"

	"github.com/halolljr/goplay/pkg/clock"
	"github.com/halolljr/goplay/pkg/decode"
)

// RefreshRate bounds the loop's poll interval to 10ms, per §4.6.
const RefreshRate = 10 * time.Millisecond

// Now returns the current wall-clock time in seconds; a field so tests
// can substitute a deterministic source.
type Now func() float64

// Loop is the Presentation Loop worker.
type Loop struct {
	video *decode.FrameQueue
	sub   *decode.FrameQueue
	ctrl  *clock.Controller

	renderer *Renderer

	now Now

	paused       func() bool
	singleStep   func() bool
	clearStep    func()
	liveExternal func() bool

	maxFrameDuration float64
	frameTimer       float64
	forceRefresh     bool

	onPlaySeconds func(seconds float64)
	playbackRate  func() float64
	queueSerial   func() uint64
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	Video, Subtitle *decode.FrameQueue
	Controller      *clock.Controller
	Renderer        *Renderer
	Now             Now
	Paused          func() bool
	SingleStep      func() bool
	ClearSingleStep func()
	LiveExternal    func() bool
	MaxFrameDuration float64
	OnPlaySeconds   func(seconds float64)
	PlaybackRate    func() float64
	// QueueSerial reports the live serial of the packet queue feeding
	// the video decoder, used to discard frames queued before a seek
	// that the seek's packet-queue flush never reached (§4.7).
	QueueSerial func() uint64
}

// NewLoop creates a Presentation Loop ready to Run.
func NewLoop(o LoopOptions) *Loop {
	now := o.Now
	if now == nil {
		now = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	return &Loop{
		video:            o.Video,
		sub:              o.Subtitle,
		ctrl:             o.Controller,
		renderer:         o.Renderer,
		now:              now,
		paused:           o.Paused,
		singleStep:       o.SingleStep,
		clearStep:        o.ClearSingleStep,
		liveExternal:     o.LiveExternal,
		maxFrameDuration: o.MaxFrameDuration,
		frameTimer:       now(),
		onPlaySeconds:    o.OnPlaySeconds,
		playbackRate:     o.PlaybackRate,
		queueSerial:      o.QueueSerial,
	}
}

// Run executes §4.6's tick loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		remaining := RefreshRate
		l.tick(&remaining)
		if l.forceRefresh {
			l.display()
			l.forceRefresh = false
		}
		if remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// tick implements one iteration of §4.6 steps 1-6.
func (l *Loop) tick(remaining *time.Duration) {
	if l.liveExternal != nil && l.liveExternal() && l.ctrl.Master() == clock.MasterExternal {
		l.ctrl.NudgeExternalClock(true, false, l.video.NbRemaining(), 0)
	}

	if l.video.NbRemaining() == 0 {
		return
	}

	last, lastOK := l.video.PeekLast()
	cur, curOK := l.video.Peek()
	if !lastOK || !curOK {
		return
	}

	if l.queueSerial != nil && cur.Serial != l.queueSerial() {
		// stale frame queued before the last seek's packet-queue flush
		// reached this stream; the frame queue itself was never
		// flushed, so drop it and retry rather than display it.
		l.video.Next()
		l.tick(remaining)
		return
	}

	if cur.Serial != last.Serial {
		l.frameTimer = l.now()
	}

	if l.paused != nil && l.paused() {
		l.forceRefresh = true
		return
	}

	lastDuration := l.frameDuration(last, cur)
	delay := l.ctrl.TargetDelay(lastDuration, l.maxFrameDuration)

	now := l.now()
	if now < l.frameTimer+delay {
		wait := l.frameTimer + delay - now
		if wait < float64(*remaining)/float64(time.Second) {
			*remaining = time.Duration(wait * float64(time.Second))
		}
		l.forceRefresh = true
		return
	}

	l.frameTimer += delay
	if delay > 0 && now-l.frameTimer > clock.AVSyncThresholdMax {
		l.frameTimer = now
	}

	l.ctrl.Video.Set(cur.Pts, cur.Serial)

	if l.video.NbRemaining() > 1 {
		next, ok := l.video.PeekNext()
		if ok && l.shouldDrop(cur, next, now) {
			l.video.Next()
			l.tick(remaining)
			return
		}
	}

	l.video.Next()
	l.forceRefresh = true
	if l.singleStep != nil && l.singleStep() && (l.paused == nil || !l.paused()) {
		l.clearStep()
	}
}

// frameDuration computes vp_duration: 0 across a serial discontinuity
// (the seek-target frame displays immediately), otherwise the pts delta,
// falling back to cur.Duration when the delta is not positive or exceeds
// maxFrameDuration.
func (l *Loop) frameDuration(cur, next decode.Frame) float64 {
	if cur.Serial != next.Serial {
		return 0
	}
	d := next.Pts - cur.Pts
	if d <= 0 || d > l.maxFrameDuration {
		return cur.Duration
	}
	return d
}

// shouldDrop delegates to clock.Controller.ShouldDropFrame with the
// duration to the next-to-display frame.
func (l *Loop) shouldDrop(cur, next decode.Frame, now float64) bool {
	dur := l.frameDuration(cur, next)
	return l.ctrl.ShouldDropFrame(now, l.frameTimer, dur, l.video.NbRemaining())
}

// display implements §4.6 step 7: compose subtitles, blit the video
// frame respecting SAR, and emit the play-seconds event.
func (l *Loop) display() {
	cur, ok := l.video.PeekLast()
	if !ok || l.renderer == nil {
		return
	}

	if err := l.renderer.DrawFrame(cur); err != nil {
		return
	}

	if l.sub != nil {
		if sf, ok := l.sub.PeekLast(); ok && sf.Serial == cur.Serial {
			l.renderer.DrawSubtitle(sf, cur.Width, cur.Height)
		}
	}

	l.renderer.Present()

	if l.onPlaySeconds != nil {
		rate := 1.0
		if l.playbackRate != nil {
			rate = l.playbackRate()
		}
		l.onPlaySeconds(cur.Pts * rate)
	}
}

// clampInt floors v at 1. DisplayRect applies it before its `&^ 1`
// parity clearing, which mirrors the C `& ~1` idiom.
func clampInt(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// round rounds to the nearest integer with halves rounded up, standing in
// for lrint in the display-rect math (values are always positive here).
func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
