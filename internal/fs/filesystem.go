package fs

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Factory provides filesystem instances for production and testing
type Factory interface {
	// Production returns a filesystem that operates on the real OS filesystem
	Production() afero.Fs
	// Memory returns an in-memory filesystem for testing
	Memory() afero.Fs
}

// DefaultFactory provides the standard filesystem factory implementation
type DefaultFactory struct{}

// NewDefaultFactory creates a new filesystem factory
func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

// Production returns a filesystem that operates on the real OS filesystem
func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

// Memory returns an in-memory filesystem for testing
func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

var trackExtensions = map[string]bool{
	".wav":  true,
	".wave": true,
	".aif":  true,
	".aiff": true,
}

// IsTrackFile reports whether name has an extension stemdeck can load.
func IsTrackFile(name string) bool {
	return trackExtensions[strings.ToLower(filepath.Ext(name))]
}

// ExpandTrackPaths replaces each directory argument with the track files it
// directly contains, sorted by name. File arguments are kept as given, in
// order, whatever their extension.
func ExpandTrackPaths(fsys afero.Fs, args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := fsys.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := afero.ReadDir(fsys, arg)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", arg, err)
		}
		var found []string
		for _, entry := range entries {
			if !entry.IsDir() && IsTrackFile(entry.Name()) {
				found = append(found, filepath.Join(arg, entry.Name()))
			}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no WAV or AIFF files in %s", arg)
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
