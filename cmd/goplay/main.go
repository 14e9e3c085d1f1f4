package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astilog"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/halolljr/goplay/pkg/engine"
)

var (
	input  = flag.String("i", "", "input path")
	width  = flag.Int("w", 1280, "window width")
	height = flag.Int("h", 720, "window height")
)

func main() {
	flag.Parse()

	if *input == "" {
		log.Println("Usage: goplay -i <input path>")
		return
	}

	l := astilog.New(astilog.Configuration{})

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_EVENTS); err != nil {
		l.Error(fmt.Errorf("main: initializing sdl failed: %w", err))
		return
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("goplay", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(*width), int32(*height), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		l.Error(fmt.Errorf("main: creating window failed: %w", err))
		return
	}
	defer window.Destroy()

	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: l})
	w.HandleSignals(astikit.TermSignalHandler(w.Stop))

	e := engine.New(w, window.GetID())
	defer e.Close()

	w.NewTask().Do(func() {
		for {
			select {
			case <-w.Context().Done():
				return
			case ev, ok := <-e.Events():
				if !ok {
					return
				}
				logEvent(l, ev)
			}
		}
	})

	w.NewTask().Do(func() {
		pollEvents(w, e)
	})

	e.Do(engine.Command{Kind: engine.CommandOpen, Path: *input})

	w.Wait()
}

// pollEvents translates SDL input into engine commands, per the key
// bindings spec §6.2 leaves to the GUI: space toggles play/pause, left/
// right seek ±5s, up/down nudge volume, f cycles playback rate, s steps a
// single frame while paused, a/v/t cycle the audio/video/subtitle stream,
// q stops playback, and window-close stops the worker.
func pollEvents(w *astikit.Worker, e *engine.Engine) {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.Context().Done():
			return
		case <-ticker.C:
			for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
				switch v := ev.(type) {
				case *sdl.QuitEvent:
					w.Stop()
					return
				case *sdl.KeyboardEvent:
					if v.Type != sdl.KEYDOWN {
						continue
					}
					handleKey(e, v.Keysym.Sym)
				}
			}
		}
	}
}

func handleKey(e *engine.Engine, sym sdl.Keycode) {
	switch sym {
	case sdl.K_SPACE:
		e.Do(engine.Command{Kind: engine.CommandPlayPause})
	case sdl.K_LEFT:
		e.Do(engine.Command{Kind: engine.CommandSeekBack})
	case sdl.K_RIGHT:
		e.Do(engine.Command{Kind: engine.CommandSeekForward})
	case sdl.K_UP:
		e.Do(engine.Command{Kind: engine.CommandAddVolume, StepDB: 2})
	case sdl.K_DOWN:
		e.Do(engine.Command{Kind: engine.CommandSubVolume, StepDB: 2})
	case sdl.K_f:
		e.Do(engine.Command{Kind: engine.CommandCycleRate})
	case sdl.K_s:
		e.Do(engine.Command{Kind: engine.CommandStepFrame})
	case sdl.K_a:
		e.Do(engine.Command{Kind: engine.CommandCycleAudio})
	case sdl.K_v:
		e.Do(engine.Command{Kind: engine.CommandCycleVideo})
	case sdl.K_t:
		e.Do(engine.Command{Kind: engine.CommandCycleSubtitle})
	case sdl.K_q:
		e.Do(engine.Command{Kind: engine.CommandStop})
	}
}

func logEvent(l astikit.CompleteLogger, ev engine.Event) {
	switch ev.Kind {
	case engine.EventError:
		l.Error(fmt.Errorf("main: engine error: %s", ev.String))
	case engine.EventTotalSeconds:
		l.Infof("main: duration: %ds", ev.Int)
	case engine.EventStartPlay:
		l.Infof("main: playing %s", ev.String)
	case engine.EventStopFinished:
		l.Infof("main: stopped")
	case engine.EventPaused:
		l.Infof("main: paused: %v", ev.Bool)
	case engine.EventRate:
		l.Infof("main: playback rate: %.2fx", ev.Float)
	case engine.EventVolume:
		l.Infof("main: volume: %.2f", ev.Float)
	}
}
