package decode

import "github.com/asticode/go-astiav"

// StreamInfo is the subset of an *astiav.Stream the reader and decoder
// need once the format context itself is no longer theirs to touch (spec
// §5's "decoders never call demuxer functions" shared-resource policy).
type StreamInfo struct {
	Index            int
	CodecParameters  *astiav.CodecParameters
	TimeBase         astiav.Rational
	FrameRate        astiav.Rational
	AttachedPicture  bool
}

func newStreamInfo(s *astiav.Stream) StreamInfo {
	fr := s.AvgFrameRate()
	if fr.Num() == 0 {
		fr = s.RFrameRate()
	}
	return StreamInfo{
		Index:           s.Index(),
		CodecParameters: s.CodecParameters(),
		TimeBase:        s.TimeBase(),
		FrameRate:       fr,
		AttachedPicture: s.Disposition()&astiav.StreamDispositionAttachedPic != 0,
	}
}

// MediaType is a thin alias kept local so callers outside go-astiav
// (engine, video, audio packages) don't need to import astiav just to
// compare media types.
type MediaType = astiav.MediaType
