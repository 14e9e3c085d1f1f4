package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/audio"
	"github.com/halolljr/goplay/pkg/clock"
	"github.com/halolljr/goplay/pkg/decode"
	"github.com/halolljr/goplay/pkg/host"
	"github.com/halolljr/goplay/pkg/video"
)

// SeekState is the state machine of spec §4.7.
type SeekState int32

const (
	SeekIdle SeekState = iota
	SeekRequested
	SeekExecuting
	SeekFlushing
)

// PlayWindow is a [start, end) sub-range of the source (see SPEC_FULL.md
// §9). VideoState carries one, but nothing sets it and the reader does
// not filter packets by it, so every source plays in full.
type PlayWindow struct {
	Start, End float64 // seconds; End == 0 means "to EOF"
}

// VideoState owns every resource a single open source needs: the
// demuxer handle, the packet/frame queues, the decoders, the three
// clocks and sync controller, the audio output and presentation loop,
// and every piece of seek/pause/volume state those workers read and
// write across goroutines.
type VideoState struct {
	reader *decode.Reader

	videoStream, audioStream, subtitleStream decode.StreamInfo
	hasVideo, hasAudio, hasSubtitle          bool

	videoPackets, audioPackets, subtitlePackets *decode.PacketQueue
	videoFrames, audioFrames, subtitleFrames    *decode.FrameQueue

	videoDecoder, audioDecoder, subtitleDecoder *decode.Decoder

	clocks *clock.Controller

	output   *audio.Output
	device   *host.AudioDevice
	renderer *video.Renderer
	loop     *video.Loop

	window PlayWindow

	// seek state, written by the facade, read by the reader loop.
	seekMu    sync.Mutex
	seekState SeekState
	seekPos   float64
	seekRel   float64

	paused     atomic.Bool
	step       atomic.Bool
	eof        atomic.Bool
	abort      atomic.Bool
	volume     atomic.Uint64 // float64 bits, [0,1]
	playbackRate atomic.Uint64 // float64 bits

	maxFrameDuration float64

	continueReadMu   sync.Mutex
	continueReadCond *sync.Cond
	continueReadFlag bool

	workers []*worker
}

// playbackRates is the cyclical rate table of §4.5: "0.25 to 3.0 in 0.25
// steps; wraps to min when it would exceed max."
var playbackRates = []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0, 2.25, 2.5, 2.75, 3.0}

func newVideoState() *VideoState {
	vs := &VideoState{}
	vs.continueReadCond = sync.NewCond(&vs.continueReadMu)
	vs.volume.Store(floatBits(1.0))
	vs.playbackRate.Store(floatBits(1.0))
	vs.maxFrameDuration = 10.0 // seconds; not adjusted to the container's format
	return vs
}

func floatBits(f float64) uint64     { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// Volume returns the current linear volume fraction in [0, 1].
func (vs *VideoState) Volume() float64 { return floatFromBits(vs.volume.Load()) }

// SetVolume stores f clamped to [0, 1].
func (vs *VideoState) SetVolume(f float64) {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	vs.volume.Store(floatBits(f))
}

// PlaybackRate returns the current playback-rate multiplier.
func (vs *VideoState) PlaybackRate() float64 { return floatFromBits(vs.playbackRate.Load()) }

// CyclePlaybackRate advances to the next entry in playbackRates, per
// §4.5's wraparound rule.
func (vs *VideoState) CyclePlaybackRate() float64 {
	cur := vs.PlaybackRate()
	next := playbackRates[0]
	for _, r := range playbackRates {
		if r >= cur+1e-9 {
			next = r
			break
		}
	}
	vs.playbackRate.Store(floatBits(next))
	return next
}

// Paused reports the current pause state.
func (vs *VideoState) Paused() bool { return vs.paused.Load() }

// SetPaused updates the pause state and freezes/unfreezes every clock.
func (vs *VideoState) SetPaused(p bool) {
	vs.paused.Store(p)
	if vs.clocks == nil {
		return
	}
	vs.clocks.Audio.SetPaused(p)
	vs.clocks.Video.SetPaused(p)
	vs.clocks.External.SetPaused(p)
}

// RequestSeek enters *Requested* in the §4.7 state machine.
func (vs *VideoState) RequestSeek(pos, rel float64) {
	vs.seekMu.Lock()
	vs.seekPos = pos
	vs.seekRel = rel
	vs.seekState = SeekRequested
	vs.seekMu.Unlock()
	vs.wakeReader()
}

func (vs *VideoState) wakeReader() {
	vs.continueReadMu.Lock()
	vs.continueReadFlag = true
	vs.continueReadCond.Broadcast()
	vs.continueReadMu.Unlock()
}

// Abort tears every queue down and wakes every blocked worker, the sole
// cancellation primitive described in spec §5.
func (vs *VideoState) Abort() {
	vs.abort.Store(true)
	if vs.videoPackets != nil {
		vs.videoPackets.Abort()
	}
	if vs.audioPackets != nil {
		vs.audioPackets.Abort()
	}
	if vs.subtitlePackets != nil {
		vs.subtitlePackets.Abort()
	}
	if vs.videoFrames != nil {
		vs.videoFrames.Signal()
	}
	if vs.audioFrames != nil {
		vs.audioFrames.Signal()
	}
	if vs.subtitleFrames != nil {
		vs.subtitleFrames.Signal()
	}
	vs.wakeReader()
}

// openStreams probes the source and opens decoders for whichever of
// video/audio/subtitle streams are present, honoring pinned selections.
func (vs *VideoState) openStreams(ctx context.Context, pinnedVideo, pinnedAudio, pinnedSubtitle int, release func(decode.Packet), onError func(error)) error {
	if s, ok := vs.reader.BestStream(astiav.MediaTypeVideo, pinnedVideo); ok {
		vs.videoStream, vs.hasVideo = s, true
	}
	if s, ok := vs.reader.BestStream(astiav.MediaTypeAudio, pinnedAudio); ok {
		vs.audioStream, vs.hasAudio = s, true
	}
	if s, ok := vs.reader.BestStream(astiav.MediaTypeSubtitle, pinnedSubtitle); ok {
		vs.subtitleStream, vs.hasSubtitle = s, true
	}
	if !vs.hasVideo && !vs.hasAudio {
		return fmt.Errorf("engine: no audio or video stream found")
	}

	vs.clocks = clock.NewController(clock.New(vs.audioSerial), clock.New(vs.videoSerial), clock.New(nil), vs.hasAudio, vs.hasVideo)

	if vs.hasVideo {
		vs.videoPackets = decode.NewPacketQueue()
		vs.videoFrames = decode.NewVideoFrameQueue(func() bool { return vs.abort.Load() })
		d, err := decode.NewDecoder(astiav.MediaTypeVideo, vs.videoStream.CodecParameters, vs.videoStream.TimeBase, vs.videoPackets, vs.videoFrames, release, onError)
		if err != nil {
			return fmt.Errorf("engine: opening video decoder failed: %w", err)
		}
		vs.videoDecoder = d
	}
	if vs.hasAudio {
		vs.audioPackets = decode.NewPacketQueue()
		vs.audioFrames = decode.NewAudioFrameQueue(func() bool { return vs.abort.Load() })
		d, err := decode.NewDecoder(astiav.MediaTypeAudio, vs.audioStream.CodecParameters, vs.audioStream.TimeBase, vs.audioPackets, vs.audioFrames, release, onError)
		if err != nil {
			return fmt.Errorf("engine: opening audio decoder failed: %w", err)
		}
		vs.audioDecoder = d
	}
	if vs.hasSubtitle {
		vs.subtitlePackets = decode.NewPacketQueue()
		vs.subtitleFrames = decode.NewSubtitleFrameQueue(func() bool { return vs.abort.Load() })
		d, err := decode.NewDecoder(astiav.MediaTypeSubtitle, vs.subtitleStream.CodecParameters, vs.subtitleStream.TimeBase, vs.subtitlePackets, vs.subtitleFrames, release, onError)
		if err != nil {
			return fmt.Errorf("engine: opening subtitle decoder failed: %w", err)
		}
		vs.subtitleDecoder = d
	}

	for _, q := range []*decode.PacketQueue{vs.videoPackets, vs.audioPackets, vs.subtitlePackets} {
		if q != nil {
			q.Start()
		}
	}
	return nil
}

// audioSerial/videoSerial let the audio/video clocks invalidate
// themselves against the queue serial they're fed from, per §3's Clock
// invariants.
func (vs *VideoState) audioSerial() uint64 {
	if vs.audioPackets == nil {
		return 0
	}
	return vs.audioPackets.Serial()
}

func (vs *VideoState) videoSerial() uint64 {
	if vs.videoPackets == nil {
		return 0
	}
	return vs.videoPackets.Serial()
}
