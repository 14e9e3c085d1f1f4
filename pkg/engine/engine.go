// Package engine implements the Engine Facade of spec §4.8: start/stop a
// play session, transport controls, volume, playback rate, and stream
// cycling, plus the command/event surface of §6.2 the GUI drives it
// through. It owns the VideoState for whichever source is currently
// open and tears it down cleanly before opening the next one.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"golang.org/x/sync/errgroup"

	"github.com/halolljr/goplay/pkg/audio"
	"github.com/halolljr/goplay/pkg/clock"
	"github.com/halolljr/goplay/pkg/decode"
	"github.com/halolljr/goplay/pkg/host"
	"github.com/halolljr/goplay/pkg/video"
)

// Engine is the facade the GUI drives through Do/Events; it is safe for
// concurrent use.
type Engine struct {
	w *astikit.Worker

	windowID uint32

	m     sync.Mutex
	vs    *VideoState
	state *engineRunState

	commands chan Command
	events   chan Event

	commandLoopCancel context.CancelFunc
	commandLoopDone   chan struct{}
}

// engineRunState bundles everything a running play session's workers need
// to join on stop: the astikit.Task every worker's own task is a subtask
// of, a done channel per worker fed by its eventNameWorkerDone handler, and
// the Closer holding the session's actual resources (reader, renderer,
// audio device).
type engineRunState struct {
	cancel    context.CancelFunc
	task      *astikit.Task
	doneChans []chan struct{}
	closer    *astikit.Closer
}

// New creates an Engine bound to windowID, the opaque platform window id
// §6.1 describes, rooted at w, the process-wide worker the caller's main
// loop owns. The caller must have already initialized SDL.
func New(w *astikit.Worker, windowID uint32) *Engine {
	e := &Engine{
		w:        w,
		windowID: windowID,
		commands: make(chan Command, 64),
		events:   make(chan Event, 256),
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.commandLoopCancel = cancel
	e.commandLoopDone = make(chan struct{})
	go e.runCommandLoop(ctx)
	return e
}

// Close stops any running session and releases every resource the
// engine has opened, in reverse order of acquisition, via a teacher-style
// LIFO Closer chain.
func (e *Engine) Close() error {
	e.commandLoopCancel()
	<-e.commandLoopDone
	e.stopLocked()
	return nil
}

func (e *Engine) runCommandLoop(ctx context.Context) {
	defer close(e.commandLoopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.commands:
			e.handle(cmd)
		}
	}
}

func (e *Engine) handle(cmd Command) {
	switch cmd.Kind {
	case CommandOpen:
		if err := e.StartPlay(cmd.Path); err != nil {
			e.emit(Event{Kind: EventError, String: err.Error()})
		}
	case CommandPlayPause:
		e.PauseToggle()
	case CommandStop:
		e.Stop()
	case CommandSeekFraction:
		e.SeekToFraction(cmd.Fraction)
	case CommandSeekForward:
		e.SeekRelative(5)
	case CommandSeekBack:
		e.SeekRelative(-5)
	case CommandAddVolume:
		e.NudgeVolume(cmd.StepDB)
	case CommandSubVolume:
		e.NudgeVolume(-cmd.StepDB)
	case CommandSetVolume:
		e.SetVolumeFraction(cmd.Fraction)
	case CommandCycleRate:
		e.CyclePlaybackRate()
	case CommandCycleAudio, CommandCycleVideo, CommandCycleSubtitle:
		e.CycleStream(cmd.Kind)
	case CommandStepFrame:
		e.stepFrame()
	}
}

// StartPlay implements §4.8's start_play: if a session is already
// running, its presentation loop is asked to exit, joined, and its
// VideoState torn down before the new one opens.
func (e *Engine) StartPlay(source string) error {
	e.m.Lock()
	defer e.m.Unlock()

	e.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	closer := astikit.NewCloser()

	vs := newVideoState()
	rdr, err := decode.Open(ctx, source)
	if err != nil {
		cancel()
		return fmt.Errorf("engine: opening source failed: %w", err)
	}
	vs.reader = rdr
	closer.Add(func() { _ = vs.reader.Close() })

	if err := vs.openStreams(ctx, -1, -1, -1, func(p decode.Packet) { rdr.PutPacket(p.AV) }, func(err error) {
		e.emit(Event{Kind: EventError, String: err.Error()})
	}); err != nil {
		cancel()
		closer.Close()
		return err
	}

	if dur := vs.reader.Duration(); dur > 0 {
		e.emit(Event{Kind: EventTotalSeconds, Int: int(dur)})
	}

	g, _ := errgroup.WithContext(ctx)

	if vs.hasVideo {
		renderer, err := host.NewRenderer(e.windowID)
		if err != nil {
			cancel()
			closer.Close()
			return fmt.Errorf("engine: opening renderer failed: %w", err)
		}
		closer.Add(func() { _ = renderer.Close() })
		vs.renderer = video.NewRenderer(renderer)
	}

	if vs.hasAudio {
		g.Go(func() error {
			device, err := audio.OpenDevice()
			if err != nil {
				return fmt.Errorf("engine: opening audio device failed: %w", err)
			}
			closer.Add(func() { _ = device.Close() })
			vs.device = device
			vs.output = audio.NewOutput(vs.audioFrames, device, vs.clocks, vs.Volume, vs.PlaybackRate, func() bool {
				return vs.clocks.Master() == clock.MasterAudio
			}, vs.audioSerial)
			device.SetPaused(false)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cancel()
		closer.Close()
		return err
	}

	vs.loop = video.NewLoop(video.LoopOptions{
		Video:            vs.videoFrames,
		Subtitle:         vs.subtitleFrames,
		Controller:       vs.clocks,
		Renderer:         vs.renderer,
		Paused:           vs.Paused,
		SingleStep:       vs.step.Load,
		ClearSingleStep:  func() { vs.step.Store(false); vs.SetPaused(true) },
		LiveExternal:     func() bool { return false },
		MaxFrameDuration: vs.maxFrameDuration,
		OnPlaySeconds:    func(s float64) { e.emit(Event{Kind: EventPlaySeconds, Float: s}) },
		PlaybackRate:     vs.PlaybackRate,
		QueueSerial:      vs.videoSerial,
	})

	state := &engineRunState{cancel: cancel, closer: closer, task: e.w.NewTask()}
	e.vs = vs
	e.state = state

	e.startWorker(state, vs, "reader", ctx, vs.runReader)
	if vs.videoDecoder != nil {
		e.startWorker(state, vs, "video-decoder", ctx, vs.videoDecoder.Run)
	}
	if vs.audioDecoder != nil {
		e.startWorker(state, vs, "audio-decoder", ctx, vs.audioDecoder.Run)
	}
	if vs.subtitleDecoder != nil {
		e.startWorker(state, vs, "subtitle-decoder", ctx, vs.subtitleDecoder.Run)
	}
	if vs.loop != nil {
		e.startWorker(state, vs, "presentation-loop", ctx, vs.loop.Run)
	}
	if vs.output != nil {
		e.startWorker(state, vs, "audio-output", ctx, vs.output.Run)
	}

	e.emit(Event{Kind: EventStartPlay, String: source})
	return nil
}

// startWorker wraps fn in the worker lifecycle primitive of worker.go: fn
// runs as a subtask of state.task, and a done channel fed by the worker's
// eventNameWorkerDone event lets stopLocked join it deterministically
// instead of racing the teacher's normally fire-and-forget Stop().
func (e *Engine) startWorker(state *engineRunState, vs *VideoState, name string, ctx context.Context, fn func(context.Context) error) {
	done := make(chan struct{})
	w := newWorker(name, astikit.NewCloser(), func(ctx context.Context, cancel context.CancelFunc, tc astikit.TaskCreator) {
		tc().Do(func() { _ = fn(ctx) })
	}, nil)
	w.e.On(eventNameWorkerDone, func(payload interface{}) (delete bool) {
		close(done)
		return true
	})
	if err := w.start(ctx, state.task.NewSubTask); err != nil {
		e.emit(Event{Kind: EventError, String: fmt.Sprintf("engine: starting worker %s failed: %v", name, err)})
		close(done)
		return
	}
	state.doneChans = append(state.doneChans, done)
	vs.workers = append(vs.workers, w)
}

// Stop implements §4.8's stop(): cancel every worker, join each one's done
// channel in the order the workers were started (reader, decoders,
// presentation loop, audio output), then release resources.
func (e *Engine) Stop() {
	e.m.Lock()
	defer e.m.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.vs == nil {
		return
	}
	e.vs.Abort()
	e.state.cancel()
	for _, done := range e.state.doneChans {
		<-done
	}
	_ = e.state.closer.Close()
	e.vs = nil
	e.state = nil
	e.emit(Event{Kind: EventStopFinished})
}

// PauseToggle implements §4.8's pause_toggle().
func (e *Engine) PauseToggle() {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	vs.SetPaused(!vs.Paused())
	e.emit(Event{Kind: EventPaused, Bool: vs.Paused()})
}

func (e *Engine) stepFrame() {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	vs.step.Store(true)
	vs.SetPaused(false)
}

// SeekToFraction implements §4.8's seek_to_fraction(f in [0,1]).
func (e *Engine) SeekToFraction(f float64) {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	dur := vs.reader.Duration()
	vs.RequestSeek(f*dur, 0)
}

// SeekRelative implements §4.8's seek_relative(±5s).
func (e *Engine) SeekRelative(deltaSeconds float64) {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	cur := vs.clocks.MasterClock().Get()
	vs.RequestSeek(cur+deltaSeconds, deltaSeconds)
}

// SetVolumeFraction implements §4.8's set_volume_fraction(f).
func (e *Engine) SetVolumeFraction(f float64) {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	vs.SetVolume(f)
	e.emit(Event{Kind: EventVolume, Float: f})
}

// NudgeVolume implements §4.8's nudge_volume(±step_dB), approximating a
// decibel step as a linear fraction step (the engine has no loudness
// model finer than the linear mix curve pkg/audio already applies).
func (e *Engine) NudgeVolume(stepDB float64) {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	vs.SetVolume(vs.Volume() + stepDB/20.0)
	e.emit(Event{Kind: EventVolume, Float: vs.Volume()})
}

// CyclePlaybackRate implements §4.8's cycle_playback_rate().
func (e *Engine) CyclePlaybackRate() {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	r := vs.CyclePlaybackRate()
	e.emit(Event{Kind: EventRate, Float: r})
}

// CycleStream implements §4.8's cycle_stream(kind) as a flush-and-reanchor:
// it enqueues a flush sentinel on the packet queue of that kind, so its
// decoder resets. It keeps the currently selected stream; it does not
// close it or switch to another stream of the same kind.
func (e *Engine) CycleStream(kind CommandKind) {
	e.m.Lock()
	vs := e.vs
	e.m.Unlock()
	if vs == nil {
		return
	}
	var q *decode.PacketQueue
	switch kind {
	case CommandCycleVideo:
		q = vs.videoPackets
	case CommandCycleAudio:
		q = vs.audioPackets
	case CommandCycleSubtitle:
		q = vs.subtitlePackets
	}
	if q != nil {
		q.PutFlush()
	}
}
