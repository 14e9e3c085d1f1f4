package video

import (
	"github.com/asticode/go-astiav"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/halolljr/goplay/pkg/host"
)

// Compose converts each of sub's palettized rects to BGRA and blits them
// onto the renderer, clipped to the video frame's (videoW, videoH)
// bounds — bitmap subtitles from a source larger than the current video
// rect are cropped rather than allowed to overflow it.
func Compose(r *host.Renderer, sub *astiav.Subtitle, videoW, videoH int) {
	for _, rect := range sub.Rects() {
		x, y, w, h := clipRect(rect.X(), rect.Y(), rect.Width(), rect.Height(), videoW, videoH)
		if w <= 0 || h <= 0 {
			continue
		}

		bgra := paletteToBGRA(rect.Data(0), rect.Palette(), rect.Linesize(0), w, h)

		tex, err := r.CreateOverlayTexture(int32(w), int32(h))
		if err != nil {
			continue
		}
		_ = tex.Update(nil, bgra, w*4)
		_ = r.CopyOverlay(tex, sdl.Rect{X: int32(x), Y: int32(y), W: int32(w), H: int32(h)})
		tex.Destroy()
	}
}

// clipRect intersects a subtitle rect with the video frame's bounds.
func clipRect(x, y, w, h, videoW, videoH int) (int, int, int, int) {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > videoW {
		w = videoW - x
	}
	if y+h > videoH {
		h = videoH - y
	}
	return x, y, w, h
}

// paletteToBGRA expands a palettized bitmap (one byte per pixel, a
// palette index) into interleaved BGRA bytes SDL can upload directly.
func paletteToBGRA(indices []byte, palette []byte, linesize, w, h int) []byte {
	out := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		src := indices[row*linesize : row*linesize+w]
		dstRow := out[row*w*4 : (row+1)*w*4]
		for col, idx := range src {
			p := palette[int(idx)*4 : int(idx)*4+4]
			dstRow[col*4+0] = p[2] // B
			dstRow[col*4+1] = p[1] // G
			dstRow[col*4+2] = p[0] // R
			dstRow[col*4+3] = p[3] // A
		}
	}
	return out
}
