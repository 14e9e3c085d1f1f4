// Package host wraps the SDL2 renderer and audio-device calls in two
// concrete types, Renderer and AudioDevice. pkg/video still uses SDL types
// (sdl.Rect, pixel formats, overlay textures) directly. It implements the
// host integration seams of spec §6.1:
// a renderer/texture pair for video upload and an audio device with the
// fallback search the sync controller and audio callback rely on.
package host

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

// Renderer wraps an SDL window's renderer and the single streaming
// texture video frames are uploaded into. Hardware acceleration is
// preferred; construction falls back to software rendering rather than
// failing outright, per §6.1.
type Renderer struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32
}

// NewRenderer creates a renderer bound to an existing platform window id
// (the "opaque platform window id" of §6.1, e.g. from an embedding GUI
// toolkit).
func NewRenderer(windowID uint32) (*Renderer, error) {
	window, err := sdl.GetWindowFromID(windowID)
	if err != nil {
		return nil, fmt.Errorf("host: resolving window %d failed: %w", windowID, err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		renderer, err = sdl.CreateRenderer(window, -1, sdl.RENDERER_SOFTWARE)
		if err != nil {
			return nil, fmt.Errorf("host: creating renderer failed (hardware and software both failed): %w", err)
		}
	}

	return &Renderer{window: window, renderer: renderer}, nil
}

// OutputSize returns the renderer's current pixel dimensions, used by
// §4.6.1's display-rect computation.
func (r *Renderer) OutputSize() (w, h int32, err error) {
	return r.renderer.GetOutputSize()
}

// EnsureTexture (re)allocates the streaming texture when the decoded
// frame's dimensions or pixel format change; it is a no-op otherwise, so
// the presentation loop can call it on every frame.
func (r *Renderer) EnsureTexture(w, h int32, format uint32) error {
	if r.texture != nil && r.texW == w && r.texH == h {
		return nil
	}
	if r.texture != nil {
		r.texture.Destroy()
		r.texture = nil
	}
	tex, err := r.renderer.CreateTexture(format, sdl.TEXTUREACCESS_STREAMING, w, h)
	if err != nil {
		return fmt.Errorf("host: creating texture %dx%d failed: %w", w, h, err)
	}
	r.texture = tex
	r.texW, r.texH = w, h
	return nil
}

// UpdateYUV uploads planar YUV (I420/NV12-family) pixel data into the
// current texture.
func (r *Renderer) UpdateYUV(yPlane, uPlane, vPlane []byte, yPitch, uPitch, vPitch int32) error {
	if r.texture == nil {
		return fmt.Errorf("host: no texture allocated")
	}
	return r.texture.UpdateYUV(nil, yPlane, yPitch, uPlane, uPitch, vPlane, vPitch)
}

// Clear clears the renderer to black, used between frames and on resize.
func (r *Renderer) Clear() error {
	if err := r.renderer.SetDrawColor(0, 0, 0, 255); err != nil {
		return err
	}
	return r.renderer.Clear()
}

// CopyToRect blits the current texture into dst, honoring the caller's
// already-computed display rect (§4.6.1).
func (r *Renderer) CopyToRect(dst sdl.Rect) error {
	if r.texture == nil {
		return fmt.Errorf("host: no texture allocated")
	}
	return r.renderer.Copy(r.texture, nil, &dst)
}

// CopyOverlay blits a palettized-subtitle surface (already converted to
// BGRA by pkg/video) into its own rect, on top of the video frame.
func (r *Renderer) CopyOverlay(tex *sdl.Texture, dst sdl.Rect) error {
	return r.renderer.Copy(tex, nil, &dst)
}

// CreateOverlayTexture allocates a one-off texture for subtitle
// compositing; callers must Destroy it once presented.
func (r *Renderer) CreateOverlayTexture(w, h int32) (*sdl.Texture, error) {
	return r.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_ARGB8888), sdl.TEXTUREACCESS_STATIC, w, h)
}

// Present flips the renderer's back buffer.
func (r *Renderer) Present() {
	r.renderer.Present()
}

// Close destroys the texture and renderer; the window itself belongs to
// the embedding GUI and is left untouched.
func (r *Renderer) Close() error {
	if r.texture != nil {
		r.texture.Destroy()
	}
	return r.renderer.Destroy()
}
