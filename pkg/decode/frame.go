package decode

import (
	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/queue"
)

// Kind discriminates what kind of payload a Frame carries.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindSubtitle
)

// Frame is a decoded picture, decoded audio buffer, or decoded subtitle,
// per spec §3.
type Frame struct {
	Kind Kind

	AV *astiav.Frame // nil for subtitle frames, which carry Subtitle instead
	Subtitle *astiav.Subtitle

	Pts      float64 // seconds
	Duration float64 // seconds
	Pos      int64   // byte position in source
	Serial   uint64  // copied from the packet that produced this frame

	Width            int
	Height           int
	Format           int32
	SampleAspectRatio astiav.Rational

	Uploaded bool // video only: avoids re-uploading to the GPU texture
}

// QueueSerial satisfies queue.Framer.
func (f Frame) QueueSerial() uint64 { return f.Serial }

// FrameQueue is the concrete frame queue type used throughout the engine.
type FrameQueue = queue.FrameQueue[Frame]

// Frame queue sizes per spec §3.
const (
	VideoFrameQueueSize    = 3
	AudioFrameQueueSize    = 9
	SubtitleFrameQueueSize = 16
)

// NewVideoFrameQueue creates the video frame queue with keep_last enabled
// (a paused player needs to repaint or handle a resize without redecoding).
func NewVideoFrameQueue(abortFunc func() bool) *FrameQueue {
	return queue.NewFrameQueue[Frame](VideoFrameQueueSize, true, abortFunc)
}

// NewAudioFrameQueue creates the audio frame queue. keep_last is
// irrelevant for audio (nothing repaints audio), so it is disabled.
func NewAudioFrameQueue(abortFunc func() bool) *FrameQueue {
	return queue.NewFrameQueue[Frame](AudioFrameQueueSize, false, abortFunc)
}

// NewSubtitleFrameQueue creates the subtitle frame queue with keep_last
// enabled so a repaint can redraw the currently active subtitle.
func NewSubtitleFrameQueue(abortFunc func() bool) *FrameQueue {
	return queue.NewFrameQueue[Frame](SubtitleFrameQueueSize, true, abortFunc)
}
