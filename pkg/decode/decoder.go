package decode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/queue"
)

// Decoder is the Decoder worker of spec §4.2: it owns one packet queue,
// one codec context, and writes into one frame queue. Reader and Decoder
// never share a lock; their only contact point is the packet queue (the
// reader fills it, the decoder drains it). The decoder does not signal
// the reader when its queue runs empty; it blocks in Get until a packet
// arrives or the queue aborts.
type Decoder struct {
	mediaType astiav.MediaType
	cc        *astiav.CodecContext
	timeBase  astiav.Rational

	in      *PacketQueue
	out     *FrameQueue
	release func(Packet)
	onError func(error)

	framePool *framePool

	pktSerial      uint64
	finishedSerial uint64
	haveFinished   bool

	startPts      float64
	nextPts       float64
	prevPts       float64
	prevNbSamples int
}

// NewDecoder opens a codec context for cp and returns a Decoder ready to
// run. in and out must already be associated with the same stream;
// release is called once a KindData packet has been fed to the codec and
// can be returned to the reader's packet pool; onError receives non-fatal
// decode errors (logged, not escalated, per §4.2).
func NewDecoder(mt astiav.MediaType, cp *astiav.CodecParameters, tb astiav.Rational, in *PacketQueue, out *FrameQueue, release func(Packet), onError func(error)) (*Decoder, error) {
	codec := astiav.FindDecoder(cp.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("decode: no decoder found for codec id %s", cp.CodecID())
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, fmt.Errorf("decode: allocating codec context failed")
	}
	if err := cc.FromCodecParameters(cp); err != nil {
		cc.Free()
		return nil, fmt.Errorf("decode: initializing codec context failed: %w", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("decode: opening codec failed: %w", err)
	}

	if release == nil {
		release = func(Packet) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	return &Decoder{
		mediaType: mt,
		cc:        cc,
		timeBase:  tb,
		in:        in,
		out:       out,
		release:   release,
		onError:   onError,
		framePool: newFramePool(),
		startPts:  0,
		nextPts:   0,
		prevPts:   0,
	}, nil
}

// Close releases the codec context. The caller must have stopped Run
// first.
func (d *Decoder) Close() {
	d.cc.Free()
}

// SetStartPts sets start_pts, the value nextPts is reset to whenever a
// flush sentinel arrives. Run never calls it; unless a caller does,
// start_pts stays 0.
func (d *Decoder) SetStartPts(pts float64) {
	d.startPts = pts
	d.nextPts = pts
}

// FinishedSerial reports the serial the decoder drained to EOF, and
// whether it has reached EOF at all.
func (d *Decoder) FinishedSerial() (serial uint64, ok bool) {
	return d.finishedSerial, d.haveFinished
}

// Run drains the packet queue and fills the frame queue until ctx is
// cancelled or the queue is aborted.
func (d *Decoder) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if d.pktSerial == d.in.Serial() && d.mediaType != astiav.MediaTypeSubtitle {
			// drains until the codec reports EAGAIN, then falls through
			// to pulling the next packet. Subtitles have no equivalent
			// buffered-output step: avcodec_decode_subtitle2 produces at
			// most one AVSubtitle per packet, so decodeSubtitle below
			// handles that inline.
			d.drainFrames()
		}

		res := d.in.Get(true)
		if res.Aborted {
			return nil
		}
		if res.Empty {
			continue
		}

		item := res.Item
		if item.Serial != d.in.Serial() {
			// stale packet from before a seek, discard.
			if item.Kind == queue.KindData {
				d.release(item.Payload)
			}
			continue
		}

		switch item.Kind {
		case queue.KindFlush:
			if d.mediaType != astiav.MediaTypeSubtitle {
				d.cc.FlushBuffers()
			}
			d.pktSerial = item.Serial
			d.nextPts = d.startPts
			d.prevPts = 0
			d.prevNbSamples = 0
			d.haveFinished = false
		case queue.KindNull:
			if d.mediaType != astiav.MediaTypeSubtitle {
				if err := d.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					d.onError(fmt.Errorf("decode: flushing codec failed: %w", err))
				}
			}
			d.pktSerial = item.Serial
		case queue.KindData:
			if d.mediaType == astiav.MediaTypeSubtitle {
				d.decodeSubtitle(item.Payload.AV, item.Serial)
			} else if err := d.cc.SendPacket(item.Payload.AV); err != nil && !errors.Is(err, astiav.ErrEagain) {
				d.onError(fmt.Errorf("decode: sending packet failed: %w", err))
			}
			d.pktSerial = item.Serial
			d.release(item.Payload)
		}
	}
}

// drainFrames pulls every decoded frame currently available from the
// codec and pushes it to the output queue. It returns true once the
// codec reports EAGAIN (needs more input) so the caller knows to pull
// the next packet.
func (d *Decoder) drainFrames() (needMoreInput bool) {
	for {
		f := d.framePool.get()
		err := d.cc.ReceiveFrame(f)
		if err != nil {
			d.framePool.put(f)
			switch {
			case errors.Is(err, astiav.ErrEagain):
				return true
			case errors.Is(err, astiav.ErrEof):
				d.finishedSerial = d.pktSerial
				d.haveFinished = true
				d.cc.FlushBuffers()
				return true
			default:
				d.onError(fmt.Errorf("decode: receiving frame failed: %w", err))
				return true
			}
		}

		// ownership of f transfers to the frame queue's consumer, which
		// unrefs it once displayed/played; the pool only recycles frames
		// that never leave drainFrames (the EAGAIN/EOF/error paths above).
		frame := d.assignPts(f)

		if !d.out.PeekWritable() {
			d.framePool.put(f)
			return true
		}
		d.out.Push(frame)
	}
}

// decodeSubtitle implements the subtitle-specific half of §4.2.1:
// avcodec_decode_subtitle2 has no buffered-output step like
// send/receive, so one packet yields at most one AVSubtitle. Only
// graphic (bitmap, format 0) subtitles are queued; text-based ones are
// discarded immediately, matching the original's subtitle_thread.
func (d *Decoder) decodeSubtitle(pkt *astiav.Packet, serial uint64) {
	sub := astiav.AllocSubtitle()

	got, err := d.cc.DecodeSubtitle2(sub, pkt)
	if err != nil {
		sub.Free()
		d.onError(fmt.Errorf("decode: decoding subtitle failed: %w", err))
		return
	}
	if !got || sub.Format() != 0 {
		sub.Free()
		return
	}
	if !d.out.PeekWritable() {
		sub.Free()
		return
	}

	frame := Frame{
		Kind:     KindSubtitle,
		Subtitle: sub,
		Serial:   serial,
		Width:    d.cc.Width(),
		Height:   d.cc.Height(),
	}
	if pts := sub.Pts(); pts != astiav.NoPtsValue {
		frame.Pts = float64(pts) / float64(astiav.TimeBase)
	}
	d.out.Push(frame)
}

// assignPts implements §4.2.1 for video and audio frames. Video uses the
// decoded frame's own pts, rescaled by the stream time base; it does not
// use the codec's best-effort timestamp or the packet DTS. Audio rescales
// the frame pts to seconds, predicting it from prev_pts + prev_nb_samples
// when absent. Subtitle pts is assigned in decodeSubtitle.
func (d *Decoder) assignPts(f *astiav.Frame) Frame {
	out := Frame{Serial: d.pktSerial}

	switch d.mediaType {
	case astiav.MediaTypeVideo:
		out.Kind = KindVideo
		out.AV = f
		if pts := f.Pts(); pts != astiav.NoPtsValue {
			out.Pts = float64(pts) * d.timeBase.Float64()
		} else {
			out.Pts = 0
		}
		out.Width = f.Width()
		out.Height = f.Height()
		out.SampleAspectRatio = f.SampleAspectRatio()

	case astiav.MediaTypeAudio:
		out.Kind = KindAudio
		out.AV = f
		sampleRate := float64(d.cc.SampleRate())
		if pts := f.Pts(); pts != astiav.NoPtsValue {
			out.Pts = float64(pts) * d.timeBase.Float64()
		} else if sampleRate > 0 {
			out.Pts = d.prevPts + float64(d.prevNbSamples)/sampleRate
		}
		out.Duration = float64(f.NbSamples()) / sampleRate
		d.prevPts = out.Pts
		d.prevNbSamples = f.NbSamples()

	default:
		out.Kind = KindVideo
		out.AV = f
	}

	return out
}

// framePool is a tiny free-list of *astiav.Frame, mirroring packetPool.
type framePool struct {
	mu sync.Mutex
	fr []*astiav.Frame
}

func newFramePool() *framePool { return &framePool{} }

func (p *framePool) get() *astiav.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fr) == 0 {
		return astiav.AllocFrame()
	}
	f := p.fr[len(p.fr)-1]
	p.fr = p.fr[:len(p.fr)-1]
	return f
}

func (p *framePool) put(f *astiav.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.Unref()
	p.fr = append(p.fr, f)
}
