// Package clock implements the three logical clocks (audio/video/external)
// described in spec §3 and the A/V synchronization controller of spec §4.4.
package clock

import (
	"math"
	"sync"
	"time"
)

// SerialSource lets a Clock observe the serial of the packet queue that
// feeds the stream it times, so a clock whose generation has moved on (a
// seek happened) reads back as undefined.
type SerialSource func() uint64

// Clock is a virtual timeline: value-semantics on each Get, a short
// critical section on each Set, per the "Clock as snapshot, not stream"
// design note.
type Clock struct {
	mu          sync.Mutex
	pts         float64 // last-set timestamp, seconds
	ptsDrift    float64 // pts - wall-clock at set time
	lastUpdated float64
	speed       float64
	serial      uint64
	paused      bool
	queueSerial SerialSource
}

// New creates a clock slaved to queueSerial's generation. queueSerial may
// be nil for the external clock, which has no backing packet queue.
func New(queueSerial SerialSource) *Clock {
	return &Clock{speed: 1.0, queueSerial: queueSerial, pts: math.NaN()}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Get returns the current time on this clock, or NaN if the clock's
// recorded serial no longer matches its observed queue serial.
func (c *Clock) Get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getUnsafe()
}

func (c *Clock) getUnsafe() float64 {
	if c.queueSerial != nil && c.queueSerial() != c.serial {
		return math.NaN()
	}
	if c.paused {
		return c.pts
	}
	now := nowSeconds()
	return c.ptsDrift + now - (now-c.lastUpdated)*(1-c.speed)
}

// SetAt sets the clock to pts (as observed at wall-clock time t) under the
// given serial.
func (c *Clock) SetAt(pts float64, serial uint64, t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts = pts
	c.lastUpdated = t
	c.ptsDrift = c.pts - t
	c.serial = serial
}

// Set sets the clock to pts, using the current wall-clock time.
func (c *Clock) Set(pts float64, serial uint64) {
	c.SetAt(pts, serial, nowSeconds())
}

// SetSpeed changes playback speed for this clock (1.0 = real time).
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-anchor at the current value so changing speed doesn't jump pts.
	pts := c.getUnsafe()
	c.speed = speed
	if !math.IsNaN(pts) {
		c.pts = pts
		c.lastUpdated = nowSeconds()
		c.ptsDrift = c.pts - c.lastUpdated
	}
}

// Speed returns the clock's current speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetPaused sets the paused flag. While paused, Get returns the frozen pts.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// Serial returns the serial the clock was last Set under.
func (c *Clock) Serial() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// SyncTo slaves this clock to slave: both pts and serial are copied,
// matching the reference's sync_clock_to_slave when the two have drifted
// by more than AVNoSyncThreshold.
func (c *Clock) SyncTo(slave *Clock) {
	cur := c.Get()
	sl := slave.Get()
	if !math.IsNaN(sl) && (math.IsNaN(cur) || math.Abs(cur-sl) > AVNoSyncThreshold) {
		c.Set(sl, slave.Serial())
	}
}
