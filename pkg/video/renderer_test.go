package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplayRectFitsHeightWhenNarrower(t *testing.T) {
	rect := DisplayRect(800, 600, 320, 240, 1, 1)
	require.Equal(t, int32(600), rect.H)
	require.LessOrEqual(t, rect.W, int32(800))
	require.Equal(t, int32(0), rect.Y)
}

func TestDisplayRectFitsWidthWhenWider(t *testing.T) {
	rect := DisplayRect(400, 600, 1920, 1080, 1, 1)
	require.Equal(t, int32(400), rect.W)
	require.LessOrEqual(t, rect.H, int32(600))
}

func TestDisplayRectHonorsSampleAspectRatio(t *testing.T) {
	square := DisplayRect(1920, 600, 320, 240, 1, 1)
	anamorphic := DisplayRect(1920, 600, 320, 240, 2, 1)
	require.Greater(t, anamorphic.W, square.W)
}

func TestClipRectIntersectsBounds(t *testing.T) {
	x, y, w, h := clipRect(-5, 10, 50, 50, 40, 40)
	require.Equal(t, 0, x)
	require.Equal(t, 10, y)
	require.Equal(t, 40, w)
	require.Equal(t, 30, h)
}
