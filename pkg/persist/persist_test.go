package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	require.NoError(t, err)
	require.Equal(t, DefaultState(), s)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.ini")
	want := State{VolumeSize: 0.75, Playlist: []string{"/a/one.mkv", "/b/two.mp4"}}

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)

	require.InDelta(t, want.VolumeSize, got.VolumeSize, 1e-9)
	require.ElementsMatch(t, want.Playlist, got.Playlist)
}
