package audio

import "math"

// Stretcher implements Waveform Similarity Overlap-Add (WSOLA)
// time-stretching: it changes playback speed without shifting pitch, for
// §4.5 step 4 ("Playback rate ... pipe resampled output through a
// dedicated time-stretch stream"). No pack dependency or common Go
// ecosystem package covers pitch-preserving time-stretch (see
// DESIGN.md), so this is implemented directly on top of the standard
// library.
type Stretcher struct {
	rate       float64
	sampleRate int
	channels   int

	frameSamples   int
	synthesisHop   int
	analysisHop    int
	searchSamples  int

	pending []int16 // leftover input not yet consumed, interleaved
	lastFrame []int16 // previous synthesis frame, for overlap correlation
	pos       float64 // fractional read position into pending, in frames
}

const (
	wsolaFrameMs  = 20
	wsolaOverlap  = 0.5
	wsolaSearchMs = 4
)

// NewStretcher creates a stretcher for the given speed (1.0 = unchanged)
// operating on interleaved signed-16 PCM at sampleRate/channels.
func NewStretcher(rate float64, sampleRate, channels int) *Stretcher {
	if rate <= 0 {
		rate = 1.0
	}
	frameSamples := sampleRate * wsolaFrameMs / 1000
	if frameSamples < 2 {
		frameSamples = 2
	}
	synthesisHop := int(float64(frameSamples) * (1 - wsolaOverlap))
	if synthesisHop < 1 {
		synthesisHop = 1
	}
	return &Stretcher{
		rate:          rate,
		sampleRate:    sampleRate,
		channels:      channels,
		frameSamples:  frameSamples,
		synthesisHop:  synthesisHop,
		analysisHop:   int(float64(synthesisHop) * rate),
		searchSamples: sampleRate * wsolaSearchMs / 1000,
	}
}

// Process consumes pcm (interleaved s16) and returns a time-stretched
// buffer; callers are expected to call Process repeatedly with a steady
// stream of chunks, since WSOLA needs lookahead beyond a single chunk to
// search for the best overlap alignment.
func (s *Stretcher) Process(pcm []byte) []byte {
	frame := bytesToSamples(pcm)
	s.pending = append(s.pending, frame...)

	frameN := s.frameSamples * s.channels
	hopN := s.analysisHop * s.channels
	if hopN < s.channels {
		hopN = s.channels
	}

	var out []int16
	for len(s.pending) >= frameN+s.searchSamples*s.channels {
		chunk := s.bestAlignedFrame(frameN)
		out = append(out, s.overlapAdd(chunk)...)

		if hopN >= len(s.pending) {
			s.pending = nil
			break
		}
		s.pending = s.pending[hopN:]
	}

	return samplesToBytes(out)
}

// bestAlignedFrame searches a small window around the nominal analysis
// hop for the offset whose frame best correlates with the previous
// synthesis frame, to avoid phase discontinuities at the splice point.
func (s *Stretcher) bestAlignedFrame(frameN int) []int16 {
	if s.lastFrame == nil || s.searchSamples == 0 {
		return s.pending[:frameN]
	}

	best := 0
	bestScore := math.Inf(-1)
	overlapN := s.channels * int(float64(s.frameSamples)*wsolaOverlap)
	if overlapN > len(s.lastFrame) {
		overlapN = len(s.lastFrame)
	}

	for off := 0; off <= s.searchSamples*s.channels; off += s.channels {
		if off+overlapN > len(s.pending) {
			break
		}
		score := crossCorrelate(s.lastFrame[len(s.lastFrame)-overlapN:], s.pending[off:off+overlapN])
		if score > bestScore {
			bestScore = score
			best = off
		}
	}
	return s.pending[best : best+frameN]
}

// overlapAdd cross-fades chunk against the tail of the previous
// synthesis frame and records chunk as the new tail.
func (s *Stretcher) overlapAdd(chunk []int16) []int16 {
	overlapN := s.channels * int(float64(s.frameSamples)*wsolaOverlap)
	if overlapN > len(chunk) {
		overlapN = len(chunk)
	}

	out := make([]int16, len(chunk))
	copy(out, chunk)

	if s.lastFrame != nil && overlapN <= len(s.lastFrame) {
		tail := s.lastFrame[len(s.lastFrame)-overlapN:]
		for i := 0; i < overlapN; i++ {
			frac := float64(i) / float64(overlapN)
			out[i] = int16(float64(tail[i])*(1-frac) + float64(chunk[i])*frac)
		}
	}

	s.lastFrame = append([]int16(nil), chunk...)
	return out[:s.synthesisHop*s.channels]
}

func crossCorrelate(a, b []int16) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

func samplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
