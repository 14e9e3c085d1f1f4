// Package decode implements the Source Reader (spec §4.3) and the Decoder
// worker (spec §4.2) on top of github.com/asticode/go-astiav's demuxer and
// codec-context bindings.
package decode

import (
	"github.com/asticode/go-astiav"

	"github.com/halolljr/goplay/pkg/queue"
)

// Packet is the payload queue.PacketQueue is parameterized with. The
// tagged variant Data(...) | Flush | Null(stream_idx) of the "Global
// sentinel packet" design note in spec §9 is queue.Item, whose Kind
// field says which; only KindData items carry a Packet with an
// *astiav.Packet.
type Packet struct {
	AV *astiav.Packet
}

// Size satisfies queue.Packeter.
func (p Packet) Size() int {
	if p.AV == nil {
		return 0
	}
	return p.AV.Size()
}

// Duration satisfies queue.Packeter.
func (p Packet) Duration() int64 {
	if p.AV == nil {
		return 0
	}
	return p.AV.Duration()
}

// PacketQueue is the concrete packet queue type every reader/decoder pair
// shares.
type PacketQueue = queue.PacketQueue[Packet]

// NewPacketQueue creates an empty packet queue.
func NewPacketQueue() *PacketQueue {
	return queue.NewPacketQueue[Packet]()
}
