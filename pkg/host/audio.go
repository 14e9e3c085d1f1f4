package host

import (
	"fmt"
	"math"

	"github.com/veandco/go-sdl2/sdl"
)

// FallbackChannels and FallbackFreqs are the §6.1 fallback search space,
// tried only when the host audio API cannot satisfy the preferred
// (channels, freq) passed to OpenAudioDevice.
var (
	FallbackChannels = []int{1, 2, 4, 6}
	FallbackFreqs    = []int{192000, 96000, 48000, 44100}
)

// AudioDevice is an opened SDL audio device, paused by default until the
// engine starts playback. pkg/audio drives it with push semantics
// (QueueAudio from its own goroutine, topping up SDL's internal ring
// buffer) rather than SDL's native pull callback, which needs a cgo
// trampoline this binding-free package avoids; the Output Callback of
// spec §4.5 is the goroutine that decides what to push, not this type.
type AudioDevice struct {
	id   sdl.AudioDeviceID
	spec sdl.AudioSpec
}

// BufferSize implements §6.1's requested-buffer-size formula:
// max(512, 2^floor(log2(freq / 30))).
func BufferSize(freq int) uint16 {
	if freq <= 0 {
		return 512
	}
	n := math.Floor(math.Log2(float64(freq) / 30.0))
	size := int(math.Pow(2, n))
	if size < 512 {
		size = 512
	}
	return uint16(size)
}

// OpenAudioDevice opens a device for (channels, freq), falling back
// across FallbackChannels x FallbackFreqs when the preferred combination
// is unavailable, as described in §6.1. The device is returned paused.
func OpenAudioDevice(preferredChannels, preferredFreq int) (*AudioDevice, error) {
	d := &AudioDevice{}

	try := func(channels, freq int) (sdl.AudioDeviceID, sdl.AudioSpec, error) {
		want := sdl.AudioSpec{
			Freq:     int32(freq),
			Format:   sdl.AUDIO_S16SYS,
			Channels: uint8(channels),
			Samples:  BufferSize(freq),
		}
		var got sdl.AudioSpec
		id, err := sdl.OpenAudioDevice("", false, &want, &got, sdl.AUDIO_ALLOW_FREQUENCY_CHANGE|sdl.AUDIO_ALLOW_CHANNELS_CHANGE)
		return id, got, err
	}

	id, spec, err := try(preferredChannels, preferredFreq)
	if err != nil {
		for _, ch := range FallbackChannels {
			for _, fr := range FallbackFreqs {
				if id, spec, err = try(ch, fr); err == nil {
					goto opened
				}
			}
		}
		return nil, fmt.Errorf("host: opening audio device failed after exhausting fallback search: %w", err)
	}

opened:
	d.id = id
	d.spec = spec
	sdl.PauseAudioDevice(id, true)
	return d, nil
}

// Spec returns the negotiated device format.
func (d *AudioDevice) Spec() sdl.AudioSpec {
	return d.spec
}

// QueueAudio pushes pre-mixed PCM into SDL's internal audio queue.
func (d *AudioDevice) QueueAudio(buf []byte) error {
	return sdl.QueueAudio(d.id, buf)
}

// QueuedSize reports how many bytes of previously queued audio SDL has
// not yet played, used by the Output Callback to decide how much more to
// push without over-filling the device's ring buffer.
func (d *AudioDevice) QueuedSize() uint32 {
	return sdl.GetQueuedAudioSize(d.id)
}

// SetPaused starts or stops the device thread.
func (d *AudioDevice) SetPaused(paused bool) {
	sdl.PauseAudioDevice(d.id, paused)
}

// Close stops and releases the device.
func (d *AudioDevice) Close() error {
	sdl.CloseAudioDevice(d.id)
	return nil
}
