package video

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/halolljr/goplay/pkg/decode"
	"github.com/halolljr/goplay/pkg/host"
)

// Renderer composes bitmap subtitles and blits decoded video frames onto
// a pkg/host.Renderer, converting pixel formats SDL can't ingest
// directly via go-astiav's swscale bindings.
type Renderer struct {
	r *host.Renderer

	sws       *astiav.SoftwareScaleContext
	swsSrcFmt astiav.PixelFormat
	swsW, swsH int
	scratch   *astiav.Frame
}

// NewRenderer wraps an already-open host renderer.
func NewRenderer(r *host.Renderer) *Renderer {
	return &Renderer{r: r}
}

// DrawFrame uploads cur's pixel data into the texture and blits it into
// the display rect computed by DisplayRect.
func (r *Renderer) DrawFrame(cur decode.Frame) error {
	if cur.AV == nil {
		return fmt.Errorf("video: frame has no payload")
	}

	f := cur.AV
	if f.PixelFormat() != astiav.PixelFormatYuv420P {
		var err error
		if f, err = r.convertToYUV420P(f); err != nil {
			return err
		}
	}

	if err := r.r.EnsureTexture(int32(f.Width()), int32(f.Height()), uint32(sdl.PIXELFORMAT_IYUV)); err != nil {
		return err
	}

	data := f.Data()
	linesize := f.Linesize()
	if err := r.r.UpdateYUV(data[0], data[1], data[2], int32(linesize[0]), int32(linesize[1]), int32(linesize[2])); err != nil {
		return err
	}

	w, h, err := r.r.OutputSize()
	if err != nil {
		return err
	}
	rect := DisplayRect(w, h, int32(cur.Width), int32(cur.Height), cur.SampleAspectRatio.Num(), cur.SampleAspectRatio.Den())

	if err := r.r.Clear(); err != nil {
		return err
	}
	return r.r.CopyToRect(rect)
}

// convertToYUV420P reconfigures (if needed) and runs the swscale context
// that normalizes exotic decoder output formats to the one format this
// renderer uploads.
func (r *Renderer) convertToYUV420P(src *astiav.Frame) (*astiav.Frame, error) {
	if r.sws == nil || r.swsSrcFmt != src.PixelFormat() || r.swsW != src.Width() || r.swsH != src.Height() {
		if r.sws != nil {
			r.sws.Free()
		}
		sws, err := astiav.CreateSoftwareScaleContext(
			src.Width(), src.Height(), src.PixelFormat(),
			src.Width(), src.Height(), astiav.PixelFormatYuv420P,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, fmt.Errorf("video: creating scale context failed: %w", err)
		}
		r.sws = sws
		r.swsSrcFmt, r.swsW, r.swsH = src.PixelFormat(), src.Width(), src.Height()
		if r.scratch == nil {
			r.scratch = astiav.AllocFrame()
		}
		r.scratch.SetWidth(src.Width())
		r.scratch.SetHeight(src.Height())
		r.scratch.SetPixelFormat(astiav.PixelFormatYuv420P)
	}

	if err := r.sws.ScaleFrame(src, r.scratch); err != nil {
		return nil, fmt.Errorf("video: scaling frame failed: %w", err)
	}
	return r.scratch, nil
}

// DrawSubtitle composites a palettized subtitle bitmap, converted to
// BGRA, clipped to a videoW x videoH box (the decoded frame's size) at
// the renderer's origin. Subtitle rects are drawn at their own pixel
// coordinates; they are not offset or scaled into the letterboxed rect
// DrawFrame computes.
func (r *Renderer) DrawSubtitle(sub decode.Frame, videoW, videoH int) {
	if sub.Subtitle == nil {
		return
	}
	// Subtitle compositing needs the per-rect bitmap/palette data the
	// decoder attaches to astiav.Subtitle; clipping to (videoW, videoH)
	// happens inside subtitle.go's Compose, which this method delegates
	// to once a destination texture is available.
	Compose(r.r, sub.Subtitle, videoW, videoH)
}

// Present flips the renderer.
func (r *Renderer) Present() {
	r.r.Present()
}

// Close releases the scale context and scratch frame.
func (r *Renderer) Close() error {
	if r.sws != nil {
		r.sws.Free()
	}
	if r.scratch != nil {
		r.scratch.Free()
	}
	return nil
}

// DisplayRect implements §4.6.1: given renderer size (W, H) and frame
// (w, h) with sample aspect ratio (num, den), compute the centered,
// SAR-corrected destination rect.
func DisplayRect(rendererW, rendererH, frameW, frameH int32, sarNum, sarDen int) sdl.Rect {
	if frameW <= 0 || frameH <= 0 {
		return sdl.Rect{}
	}

	aspect := 1.0
	if sarNum != 0 && sarDen != 0 {
		aspect = float64(sarNum) / float64(sarDen)
	}
	ar := aspect * float64(frameW) / float64(frameH)

	height := rendererH
	width := int32(clampInt(round(float64(height)*ar))) &^ 1
	if width > rendererW {
		width = rendererW
		height = int32(clampInt(round(float64(width)/ar))) &^ 1
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	x := (rendererW - width) / 2
	y := (rendererH - height) / 2
	return sdl.Rect{X: x, Y: y, W: width, H: height}
}
