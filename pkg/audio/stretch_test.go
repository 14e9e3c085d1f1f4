package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sineSamples(n, channels int) []int16 {
	s := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		v := int16(1000)
		if i%2 == 0 {
			v = -1000
		}
		for c := 0; c < channels; c++ {
			s[i*channels+c] = v
		}
	}
	return s
}

func TestStretcherUnityRatePassesRoughlySameLength(t *testing.T) {
	st := NewStretcher(1.0, 48000, 2)
	in := samplesToBytes(sineSamples(48000, 2)) // 1 second
	out := st.Process(in)
	require.NotEmpty(t, out)
	require.LessOrEqual(t, len(out), len(in)+len(in)/4)
}

func TestStretcherFasterRateShrinksOutput(t *testing.T) {
	slow := NewStretcher(1.0, 48000, 2)
	fast := NewStretcher(2.0, 48000, 2)
	in := samplesToBytes(sineSamples(48000, 2))

	slowOut := slow.Process(in)
	fastOut := fast.Process(in)
	require.Less(t, len(fastOut), len(slowOut)+1)
}

func TestBytesSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	require.Equal(t, in, bytesToSamples(samplesToBytes(in)))
}
