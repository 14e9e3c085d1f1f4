package decode

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/asticode/go-astiav"
)

// Reader is the low-level wrapper around an *astiav.FormatContext: opening
// the source, probing streams, and reading/seeking packets. The main loop
// that routes packets into per-stream queues and reacts to seek requests
// lives in pkg/engine, which owns VideoState; Reader itself never touches
// a PacketQueue, matching spec §5's "decoders never call demuxer
// functions" shared-resource policy applied symmetrically to the reader.
type Reader struct {
	mu          sync.Mutex
	fc          *astiav.FormatContext
	streams     map[int]StreamInfo
	interrupter astiav.IOInterrupter
	packetPool  *packetPool
}

// Open opens url (any container/protocol go-astiav's demuxer supports:
// MKV, MP4, AVI, FLV, WMV, 3GP, RMVB, RTP/RTSP/SDP, ...) and probes its
// streams.
func Open(ctx context.Context, url string) (r *Reader, err error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("decode: allocating format context failed")
	}
	r = &Reader{fc: fc, streams: make(map[int]StreamInfo), packetPool: newPacketPool()}
	r.interrupter = fc.SetInterruptCallback()

	if ctx != nil {
		go func() {
			<-ctx.Done()
			r.interrupter.Interrupt()
		}()
	}

	if err = fc.OpenInput(url, nil, nil); err != nil {
		return nil, fmt.Errorf("decode: opening input %q failed: %w", url, err)
	}
	if err = fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		return nil, fmt.Errorf("decode: finding stream info failed: %w", err)
	}

	for _, s := range fc.Streams() {
		r.streams[s.Index()] = newStreamInfo(s)
	}
	return r, nil
}

// Streams returns every probed stream, ordered by index.
func (r *Reader) Streams() []StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	idxs := make([]int, 0, len(r.streams))
	for idx := range r.streams {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	out := make([]StreamInfo, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, r.streams[idx])
	}
	return out
}

// BestStream picks the "best" stream of the given media type, the way
// go-astiav's FindBestStream does, preferring the caller's pinned index
// when one is supplied and valid.
func (r *Reader) BestStream(mt astiav.MediaType, pinned int) (StreamInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pinned >= 0 {
		if s, ok := r.streams[pinned]; ok && s.CodecParameters.MediaType() == mt {
			return s, true
		}
	}
	idx, _, err := r.fc.FindBestStream(mt, -1, -1, nil)
	if err != nil {
		return StreamInfo{}, false
	}
	s, ok := r.streams[idx]
	return s, ok
}

// Duration returns the container's total duration in seconds, or 0 if
// unknown.
func (r *Reader) Duration() float64 {
	d := r.fc.Duration()
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(astiav.TimeBase)
}

// StartTime returns the demuxer's reported start pts (container timebase
// AV_TIME_BASE).
func (r *Reader) StartTime() int64 {
	return r.fc.StartTime()
}

// ReadPacket reads the next packet from the container into a pooled
// *astiav.Packet. Callers must call PutPacket once done with it.
func (r *Reader) ReadPacket() (pkt *astiav.Packet, err error) {
	pkt = r.packetPool.get()
	if err = r.fc.ReadFrame(pkt); err != nil {
		r.packetPool.put(pkt)
		return nil, err
	}
	return pkt, nil
}

// PutPacket returns a packet obtained from ReadPacket to the pool.
func (r *Reader) PutPacket(pkt *astiav.Packet) {
	r.packetPool.put(pkt)
}

// SeekRange performs a ranged seek: [min, target, max] in the given
// stream's timebase (or the container's AV_TIME_BASE when streamIdx < 0).
func (r *Reader) SeekRange(streamIdx int, min, target, max int64) error {
	return r.fc.SeekFile(streamIdx, min, target, max, 0)
}

// Flush discards any buffered data in the demuxer after a seek.
func (r *Reader) Flush() error {
	return r.fc.FlushBuffers()
}

// Close releases the format context and every pooled packet.
func (r *Reader) Close() error {
	r.fc.CloseInput()
	r.fc.Free()
	r.packetPool.close()
	return nil
}

// packetPool is a tiny sync.Pool-style free-list for *astiav.Packet,
// grounded on pkg/libs/astiav/packet_pool.go's approach (reuse rather
// than reallocate on every ReadFrame).
type packetPool struct {
	mu  sync.Mutex
	pkt []*astiav.Packet
}

func newPacketPool() *packetPool { return &packetPool{} }

func (p *packetPool) get() *astiav.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pkt) == 0 {
		return astiav.AllocPacket()
	}
	pkt := p.pkt[len(p.pkt)-1]
	p.pkt = p.pkt[:len(p.pkt)-1]
	return pkt
}

func (p *packetPool) put(pkt *astiav.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pkt.Unref()
	p.pkt = append(p.pkt, pkt)
}

func (p *packetPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pkt := range p.pkt {
		pkt.Free()
	}
	p.pkt = nil
}
