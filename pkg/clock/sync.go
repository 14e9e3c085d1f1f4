package clock

import (
	"math"

	"github.com/samber/lo"
)

// Constants ported verbatim from the ffplay-derived original this spec was
// distilled from (see SPEC_FULL.md §4.4).
const (
	AVSyncThresholdMin       = 0.04
	AVSyncThresholdMax       = 0.1
	AVSyncFramedupThreshold  = 0.1
	AVNoSyncThreshold        = 10.0
	ExternalClockSpeedMin    = 0.900
	ExternalClockSpeedMax    = 1.010
	ExternalClockSpeedStep   = 0.001
	ExternalClockMinFrames   = 2
	ExternalClockMaxFrames   = 10
	AudioDiffAvgNB           = 20
)

// Master identifies which clock the engine currently synchronizes the
// other two against.
type Master int

const (
	MasterAudio Master = iota
	MasterVideo
	MasterExternal
)

// Controller selects the master clock and computes target delays and
// drop/duplicate decisions for the presentation loop, and the running
// sample-count adjustment for the audio callback. See spec §4.4.
type Controller struct {
	Audio    *Clock
	Video    *Clock
	External *Clock

	hasAudio bool
	hasVideo bool

	// audio diff averaging state (spec §4.5 step 3)
	audioDiffAvgCoef  float64
	audioDiffCum      float64
	audioDiffAvgCount int

	lateFrameDrops uint64
}

// NewController wires up a controller for a source with the given stream
// availability. Clocks are owned by the controller's caller (engine.VideoState)
// and passed in so the controller never allocates them itself.
func NewController(audio, video, external *Clock, hasAudio, hasVideo bool) *Controller {
	return &Controller{Audio: audio, Video: video, External: external, hasAudio: hasAudio, hasVideo: hasVideo}
}

// Master returns which clock is currently the synchronization reference:
// audio if present (default), else video, else external.
func (c *Controller) Master() Master {
	if c.hasAudio {
		return MasterAudio
	}
	if c.hasVideo {
		return MasterVideo
	}
	return MasterExternal
}

// MasterClock returns the Clock corresponding to Master().
func (c *Controller) MasterClock() *Clock {
	switch c.Master() {
	case MasterAudio:
		return c.Audio
	case MasterVideo:
		return c.Video
	default:
		return c.External
	}
}

// NudgeExternalClock auto-adjusts the external clock's speed between
// ExternalClockSpeedMin and ExternalClockSpeedMax to keep a live source's
// queues roughly half full: slow down when either active stream's queue
// holds ExternalClockMinFrames packets or fewer, speed up once both
// active streams' queues exceed ExternalClockMaxFrames, otherwise ease
// the speed back toward 1.0. Per SPEC_FULL.md §9, this only runs when
// external is the selected master - the non-degenerate reading of the
// ambiguous branch flagged in spec §9 - and only for a live, unpaused
// source (the caller is expected to gate on that).
func (c *Controller) NudgeExternalClock(hasVideo, hasAudio bool, videoPackets, audioPackets int) {
	if c.Master() != MasterExternal {
		return
	}

	switch {
	case (hasVideo && videoPackets <= ExternalClockMinFrames) || (hasAudio && audioPackets <= ExternalClockMinFrames):
		c.External.SetSpeed(math.Max(ExternalClockSpeedMin, c.External.Speed()-ExternalClockSpeedStep))
	case (!hasVideo || videoPackets > ExternalClockMaxFrames) && (!hasAudio || audioPackets > ExternalClockMaxFrames):
		c.External.SetSpeed(math.Min(ExternalClockSpeedMax, c.External.Speed()+ExternalClockSpeedStep))
	default:
		speed := c.External.Speed()
		if speed != 1.0 {
			c.External.SetSpeed(speed + ExternalClockSpeedStep*(1.0-speed)/math.Abs(1.0-speed))
		}
	}
}

// TargetDelay computes the delay to wait before displaying the next video
// frame, given lastDuration (the pts gap between the last-displayed and
// next-to-display frame, both within the same serial) and
// maxFrameDuration (the timestamp-discontinuity threshold). See spec §4.4.
func (c *Controller) TargetDelay(lastDuration, maxFrameDuration float64) float64 {
	delay := lastDuration
	diff := c.Video.Get() - c.MasterClock().Get()
	syncThreshold := math.Max(AVSyncThresholdMin, math.Min(AVSyncThresholdMax, lastDuration))

	switch {
	case math.IsNaN(diff) || math.Abs(diff) >= maxFrameDuration:
		// Ignore, use last_duration.
	case diff <= -syncThreshold:
		delay = math.Max(0, lastDuration+diff)
	case diff >= syncThreshold && lastDuration > AVSyncFramedupThreshold:
		delay = lastDuration + diff
	case diff >= syncThreshold:
		delay = 2 * lastDuration
	}
	return delay
}

// ShouldDropFrame implements spec §4.4's frame-drop policy: drop the
// current frame and retry if wall time has advanced past the point it
// should have been shown, the master is not video, and more than one
// frame is queued.
func (c *Controller) ShouldDropFrame(wallTime, frameTimer, frameDuration float64, queuedFrames int) bool {
	if c.Master() == MasterVideo {
		return false
	}
	if queuedFrames <= 1 {
		return false
	}
	if wallTime <= frameTimer+frameDuration {
		return false
	}
	c.lateFrameDrops++
	return true
}

// LateFrameDrops is the observable counter spec §4.4 requires.
func (c *Controller) LateFrameDrops() uint64 {
	return c.lateFrameDrops
}

// resetAudioDiffAvg seeds the exponential average; WantedSamples calls it
// on first use.
func (c *Controller) resetAudioDiffAvg() {
	// exp(log(0.01) / AudioDiffAvgNB), i.e. decays to 1% after AudioDiffAvgNB samples.
	c.audioDiffAvgCoef = math.Exp(math.Log(0.01) / AudioDiffAvgNB)
	c.audioDiffCum = 0
	c.audioDiffAvgCount = 0
}

// WantedSamples implements spec §4.5 step 3: a running exponential average
// of (audio_clock - master_clock), used only when audio is not the master.
// nbSamples is the frame's sample count, freq the output sample rate,
// hwBufSizeSeconds the device buffer duration in seconds. Returns the
// adjusted sample count to request from the resampler, clamped to ±10% of
// nominal, and whether a correction should be applied at all (false until
// AudioDiffAvgNB samples have seeded the average).
func (c *Controller) WantedSamples(audioClockPts float64, nbSamples int, freq float64, hwBufSizeSeconds float64) (wanted int, apply bool) {
	if c.Master() == MasterAudio {
		return nbSamples, false
	}
	if c.audioDiffAvgCoef == 0 {
		c.resetAudioDiffAvg()
	}

	diff := audioClockPts - c.MasterClock().Get()
	if math.IsNaN(diff) || math.Abs(diff) >= AVNoSyncThreshold {
		c.audioDiffAvgCount = 0
		c.audioDiffCum = 0
		return nbSamples, false
	}

	c.audioDiffCum = diff + c.audioDiffAvgCoef*c.audioDiffCum
	if c.audioDiffAvgCount < AudioDiffAvgNB {
		c.audioDiffAvgCount++
		return nbSamples, false
	}

	avgDiff := c.audioDiffCum * (1.0 - c.audioDiffAvgCoef)
	if math.Abs(avgDiff) < hwBufSizeSeconds {
		return nbSamples, false
	}

	wantedSamples := float64(nbSamples) + avgDiff*freq
	minSamples := float64(nbSamples) * (1 - 0.1)
	maxSamples := float64(nbSamples) * (1 + 0.1)
	wanted = int(lo.Clamp(wantedSamples, minSamples, maxSamples))
	return wanted, true
}
