package engine

import (
	"context"
	"errors"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/decode"
	"github.com/halolljr/goplay/pkg/queue"
)

// seekEpsilonTicks is the ε §4.3 pads seek_min and seek_max with. It is
// applied in AV_TIME_BASE (microsecond) ticks, the units serviceSeek
// seeks in.
const seekEpsilonTicks = 2

// runReader implements the Source Reader's main loop, spec §4.3.
func (vs *VideoState) runReader(ctx context.Context) error {
	attachedPictureSent := false

	for {
		if ctx.Err() != nil || vs.abort.Load() {
			return nil
		}

		if vs.serviceSeek() {
			continue
		}

		if vs.hasVideo && vs.videoStream.AttachedPicture {
			if !attachedPictureSent {
				vs.sendAttachedPicture()
				attachedPictureSent = true
			}
			vs.sleepReader(ctx, 10*time.Millisecond)
			continue
		}

		if vs.globalCapReached() {
			vs.waitContinueRead(10 * time.Millisecond)
			continue
		}

		if vs.allDecodersDrained() && !vs.Paused() {
			vs.emit(Event{Kind: EventStopFinished})
			vs.sleepReader(ctx, 10*time.Millisecond)
			continue
		}

		pkt, err := vs.reader.ReadPacket()
		if err != nil {
			if errors.Is(err, astiav.ErrEof) {
				vs.enqueueNull()
				vs.eof.Store(true)
				vs.sleepReader(ctx, 10*time.Millisecond)
				continue
			}
			vs.sleepReader(ctx, 10*time.Millisecond)
			continue
		}
		vs.routePacket(pkt)
	}
}

func (vs *VideoState) sleepReader(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// serviceSeek executes §4.7's Requested -> Executing -> Flushing -> Idle
// transition when a seek is pending, returning true if it handled one
// (so the caller re-evaluates from the top of the loop).
func (vs *VideoState) serviceSeek() bool {
	vs.seekMu.Lock()
	if vs.seekState != SeekRequested {
		vs.seekMu.Unlock()
		return false
	}
	vs.seekState = SeekExecuting
	pos, rel := vs.seekPos, vs.seekRel
	vs.seekMu.Unlock()

	// streamIdx -1 tells SeekRange to interpret its bounds in
	// AV_TIME_BASE (microsecond) units rather than a stream's own
	// timebase.
	target := int64(pos * float64(astiav.TimeBase))
	relTicks := int64(rel * float64(astiav.TimeBase))
	lo, hi := target-seekEpsilonTicks, target+seekEpsilonTicks
	if relTicks < 0 {
		lo += relTicks
	} else {
		hi += relTicks
	}

	err := vs.reader.SeekRange(-1, lo, target, hi)

	vs.seekMu.Lock()
	vs.seekState = SeekFlushing
	vs.seekMu.Unlock()

	if err == nil {
		for _, q := range []*decode.PacketQueue{vs.videoPackets, vs.audioPackets, vs.subtitlePackets} {
			if q != nil {
				q.Flush()
				q.PutFlush()
			}
		}
		vs.clocks.External.Set(pos, 0)
		vs.eof.Store(false)
		if vs.Paused() {
			vs.step.Store(true)
		}
	}

	vs.seekMu.Lock()
	vs.seekState = SeekIdle
	vs.seekMu.Unlock()
	return true
}

// sendAttachedPicture implements §4.3's one-shot handling of album-art
// streams: enqueue the single attached packet, then a null packet, then
// idle.
func (vs *VideoState) sendAttachedPicture() {
	// The reader reads the next packet from the container; it is queued
	// only if it belongs to the video stream, otherwise it goes back to
	// the pool. The null packet is queued either way.
	pkt, err := vs.reader.ReadPacket()
	if err != nil {
		return
	}
	if pkt.StreamIndex() == vs.videoStream.Index {
		vs.videoPackets.Put(pkt.StreamIndex(), decode.Packet{AV: pkt})
	} else {
		vs.reader.PutPacket(pkt)
	}
	vs.videoPackets.PutNull(vs.videoStream.Index)
}

// globalCapReached implements §4.1's OR-condition: the reader throttles
// once the combined queue bytes exceed the global cap, or once every
// active stream's own queue already holds enough buffered packets on
// its own (MinFrames packets spanning more than MinQueueDuration).
// A stream that isn't open counts as trivially satisfied.
func (vs *VideoState) globalCapReached() bool {
	queues := make([]*decode.PacketQueue, 0, 3)
	for _, q := range []*decode.PacketQueue{vs.videoPackets, vs.audioPackets, vs.subtitlePackets} {
		if q != nil {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		return false
	}
	if queue.GlobalReady(queues...) {
		return true
	}
	return vs.allQueuesReady()
}

// allQueuesReady reports whether every open packet queue individually
// satisfies queue.PacketQueue.Ready.
func (vs *VideoState) allQueuesReady() bool {
	if vs.videoPackets != nil && !vs.videoPackets.Ready(timeBaseDuration(vs.videoStream.TimeBase)) {
		return false
	}
	if vs.audioPackets != nil && !vs.audioPackets.Ready(timeBaseDuration(vs.audioStream.TimeBase)) {
		return false
	}
	if vs.subtitlePackets != nil && !vs.subtitlePackets.Ready(timeBaseDuration(vs.subtitleStream.TimeBase)) {
		return false
	}
	return true
}

// timeBaseDuration converts a tick count in tb units to a time.Duration,
// the shape queue.PacketQueue.Ready wants for its "> 1s buffered" check.
func timeBaseDuration(tb astiav.Rational) func(ticks int64) time.Duration {
	return func(ticks int64) time.Duration {
		return time.Duration(float64(ticks) * tb.Float64() * float64(time.Second))
	}
}

func (vs *VideoState) waitContinueRead(timeout time.Duration) {
	vs.continueReadMu.Lock()
	defer vs.continueReadMu.Unlock()
	if vs.continueReadFlag {
		vs.continueReadFlag = false
		return
	}
	done := make(chan struct{})
	go func() {
		vs.continueReadCond.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
	vs.continueReadFlag = false
}

func (vs *VideoState) allDecodersDrained() bool {
	if vs.videoDecoder != nil {
		if _, ok := vs.videoDecoder.FinishedSerial(); !ok {
			return false
		}
	}
	if vs.audioDecoder != nil {
		if _, ok := vs.audioDecoder.FinishedSerial(); !ok {
			return false
		}
	}
	return vs.eof.Load()
}

func (vs *VideoState) enqueueNull() {
	if vs.videoPackets != nil {
		vs.videoPackets.PutNull(vs.videoStream.Index)
	}
	if vs.audioPackets != nil {
		vs.audioPackets.PutNull(vs.audioStream.Index)
	}
	if vs.subtitlePackets != nil {
		vs.subtitlePackets.PutNull(vs.subtitleStream.Index)
	}
}

func (vs *VideoState) routePacket(pkt *astiav.Packet) {
	idx := pkt.StreamIndex()
	switch {
	case vs.hasVideo && idx == vs.videoStream.Index:
		vs.videoPackets.Put(idx, decode.Packet{AV: pkt})
	case vs.hasAudio && idx == vs.audioStream.Index:
		vs.audioPackets.Put(idx, decode.Packet{AV: pkt})
	case vs.hasSubtitle && idx == vs.subtitleStream.Index:
		vs.subtitlePackets.Put(idx, decode.Packet{AV: pkt})
	default:
		vs.reader.PutPacket(pkt)
	}
}
