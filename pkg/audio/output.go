// Package audio implements the Audio Output Callback of spec §4.5:
// pulling decoded frames off the audio frame queue, resampling them to the
// device's negotiated format, applying the sync controller's sample-count
// adjustment and the current playback-rate time-stretch, mixing at the
// configured volume, and pushing the result to the host audio device.
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/clock"
	"github.com/halolljr/goplay/pkg/decode"
	"github.com/halolljr/goplay/pkg/host"
)

// TargetFormat is the device-facing PCM shape every frame is resampled
// to before mixing; it mirrors the AudioDevice's negotiated spec.
type TargetFormat struct {
	SampleRate int
	Channels   int
	BytesPerSec int
}

// Output is the Audio Output Callback worker.
type Output struct {
	in      *decode.FrameQueue
	device  *host.AudioDevice
	ctrl    *clock.Controller
	target  TargetFormat

	resampler *astiav.SoftwareResampleContext
	srcFormat astiav.SampleFormat
	srcRate   int
	srcLayout astiav.ChannelLayout

	stretch      *Stretcher
	stretchRate  float64

	volume      func() float64 // [0,1], single writer (facade), single reader (this loop)
	rate        func() float64
	isMasterFn  func() bool
	queueSerial func() uint64 // the backing packet queue's live serial, per decode.Decoder's d.in.Serial()
}

// NewOutput creates an Output callback bound to in (the decoder's audio
// frame queue) and device (the opened host audio device). queueSerial
// reports the live serial of the packet queue feeding the decoder that
// fills in, used to drop frames left over from before a seek.
func NewOutput(in *decode.FrameQueue, device *host.AudioDevice, ctrl *clock.Controller, volume, rate func() float64, isMaster func() bool, queueSerial func() uint64) *Output {
	spec := device.Spec()
	return &Output{
		in:     in,
		device: device,
		ctrl:   ctrl,
		target: TargetFormat{
			SampleRate:  int(spec.Freq),
			Channels:    int(spec.Channels),
			BytesPerSec: int(spec.Freq) * int(spec.Channels) * 2, // signed-16
		},
		volume:      volume,
		rate:        rate,
		isMasterFn:  isMaster,
		queueSerial: queueSerial,
	}
}

// Run feeds the device until ctx is cancelled. It tops up SDL's queue
// whenever less than bufferLow bytes remain queued, implementing the
// pull-like cadence the host audio device would otherwise drive via its
// native callback (see DESIGN.md).
func (o *Output) Run(ctx context.Context) error {
	const pollInterval = 10 * time.Millisecond
	bufferLow := uint32(o.target.BytesPerSec / 10) // ~100ms of headroom

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if o.device.QueuedSize() > bufferLow {
			time.Sleep(pollInterval)
			continue
		}

		buf, ok := o.nextChunk()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		if err := o.device.QueueAudio(buf); err != nil {
			return fmt.Errorf("audio: queueing audio failed: %w", err)
		}
	}
}

// nextChunk implements §4.5 steps 1-5 for one decoded frame.
func (o *Output) nextChunk() ([]byte, bool) {
	f, ok := o.in.PeekReadable()
	if !ok {
		return nil, false
	}
	defer o.in.Next()

	if f.Serial != o.queueSerial() {
		// stale frame from before a seek, drop and let the caller retry.
		return nil, false
	}

	pcm, err := o.resample(f)
	if err != nil {
		return nil, false
	}

	if !o.isMasterFn() {
		pcm = o.applySyncAdjustment(f, pcm)
	}

	if rate := o.rate(); rate != 1.0 {
		pcm = o.applyStretch(rate, pcm)
	}

	return o.mix(pcm), true
}

// resample converts a decoded frame to the device's target format,
// (re)configuring the resampler whenever the source format, rate, or
// channel layout drifts from what it was last configured for.
func (o *Output) resample(f decode.Frame) ([]byte, error) {
	if f.AV == nil {
		return nil, fmt.Errorf("audio: frame has no payload")
	}

	srcFormat := f.AV.SampleFormat()
	srcRate := f.AV.SampleRate()
	srcLayout := f.AV.ChannelLayout()

	if o.resampler == nil || srcFormat != o.srcFormat || srcRate != o.srcRate || !srcLayout.Equal(o.srcLayout) {
		if o.resampler != nil {
			o.resampler.Free()
		}
		dstLayout := astiav.ChannelLayoutFromChannels(o.target.Channels)
		rs, err := astiav.AllocSoftwareResampleContext(
			srcLayout, srcFormat, srcRate,
			dstLayout, astiav.SampleFormatS16, o.target.SampleRate,
		)
		if err != nil {
			return nil, fmt.Errorf("audio: allocating resampler failed: %w", err)
		}
		o.resampler = rs
		o.srcFormat, o.srcRate, o.srcLayout = srcFormat, srcRate, srcLayout
	}

	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetSampleFormat(astiav.SampleFormatS16)
	dst.SetChannelLayout(astiav.ChannelLayoutFromChannels(o.target.Channels))
	dst.SetSampleRate(o.target.SampleRate)

	if err := o.resampler.ConvertFrame(f.AV, dst); err != nil {
		return nil, fmt.Errorf("audio: resampling failed: %w", err)
	}
	return dst.Data()[0], nil
}

// applySyncAdjustment implements §4.5 step 3: when audio is not the
// master clock, nudge the resampler's requested sample count toward
// (audio_clock - master_clock) using clock.Controller.WantedSamples.
func (o *Output) applySyncAdjustment(f decode.Frame, pcm []byte) []byte {
	bytesPerSample := 2 * o.target.Channels
	nbSamples := len(pcm) / bytesPerSample
	if nbSamples == 0 {
		return pcm
	}

	hwBufSizeSeconds := float64(o.device.Spec().Size) / float64(o.target.BytesPerSec)
	wanted, apply := o.ctrl.WantedSamples(f.Pts, nbSamples, float64(o.target.SampleRate), hwBufSizeSeconds)
	if !apply || wanted == nbSamples {
		return pcm
	}

	if wanted < nbSamples {
		return pcm[:wanted*bytesPerSample]
	}
	// duplicate the tail sample to stretch the buffer out to wanted
	// samples, matching the reference's silence-pad behavior closely
	// enough for short corrections (a handful of samples at most).
	extra := make([]byte, (wanted-nbSamples)*bytesPerSample)
	if len(pcm) >= bytesPerSample {
		tail := pcm[len(pcm)-bytesPerSample:]
		for i := 0; i < len(extra); i += bytesPerSample {
			copy(extra[i:i+bytesPerSample], tail)
		}
	}
	return append(pcm, extra...)
}

// applyStretch implements §4.5 step 4: pipe resampled output through a
// time-stretch stream whenever the current playback rate isn't 1.0,
// re-creating the stream on a rate change.
func (o *Output) applyStretch(rate float64, pcm []byte) []byte {
	if o.stretch == nil || o.stretchRate != rate {
		o.stretch = NewStretcher(rate, o.target.SampleRate, o.target.Channels)
		o.stretchRate = rate
	}
	return o.stretch.Process(pcm)
}

// mix applies §4.5 step 5's volume curve: a linear fraction at max
// volume, a soft-mix otherwise.
func (o *Output) mix(pcm []byte) []byte {
	v := o.volume()
	if v >= 0.999 {
		return pcm
	}
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		scaled := float64(sample) * softMixCurve(v)
		s16 := int16(scaled)
		out[i] = byte(s16)
		out[i+1] = byte(s16 >> 8)
	}
	return out
}

// softMixCurve keeps perceived loudness closer to linear than a raw
// amplitude scale would, matching ffplay's SDL_MixAudioFormat-adjacent
// feel without needing its format-dependent C mixing table.
func softMixCurve(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * v
}

// Close releases the resampler.
func (o *Output) Close() error {
	if o.resampler != nil {
		o.resampler.Free()
	}
	return nil
}
