package audio

import "github.com/halolljr/goplay/pkg/host"

// PreferredChannels and PreferredSampleRate are the device negotiation's
// starting point per §6.1, before the fallback search kicks in.
const (
	PreferredChannels   = 2
	PreferredSampleRate = 48000
)

// OpenDevice opens the host audio device with the preferred
// (channels, rate, signed-16) spec of §6.1, returning whatever it
// actually negotiated (which may differ after the fallback search).
func OpenDevice() (*host.AudioDevice, error) {
	return host.OpenAudioDevice(PreferredChannels, PreferredSampleRate)
}
