// Package persist reads and writes the one INI file spec §6.3 pins down
// precisely: volume and playlist state the GUI persists across runs. The
// engine itself never calls this package (§6.3: "the engine itself is
// stateless across runs"); it exists as a ready, tested implementation
// for the out-of-scope GUI layer.
package persist

import (
	"strconv"

	"gopkg.in/ini.v1"
)

const (
	sectionVolume   = "volume"
	keyVolumeSize   = "size"
	sectionPlaylist = "playlist"
)

// State is the persisted shape described by §6.3.
type State struct {
	VolumeSize float64
	Playlist   []string
}

// DefaultState matches a fresh install with no prior persisted file.
func DefaultState() State {
	return State{VolumeSize: 1.0}
}

// Load reads path, returning DefaultState (not an error) when the file
// does not exist yet.
func Load(path string) (State, error) {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return State{}, err
	}

	s := DefaultState()
	s.VolumeSize = f.Section(sectionVolume).Key(keyVolumeSize).MustFloat64(s.VolumeSize)

	sec := f.Section(sectionPlaylist)
	for _, k := range sec.Keys() {
		if v := k.String(); v != "" {
			s.Playlist = append(s.Playlist, v)
		}
	}
	return s, nil
}

// Save writes s to path, overwriting whatever was there.
func Save(path string, s State) error {
	f := ini.Empty()

	f.Section(sectionVolume).Key(keyVolumeSize).SetValue(strconv.FormatFloat(s.VolumeSize, 'g', -1, 64))

	sec := f.Section(sectionPlaylist)
	for i, p := range s.Playlist {
		sec.NewKey("entry_"+strconv.Itoa(i), p)
	}

	return f.SaveTo(path)
}
