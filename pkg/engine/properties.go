package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
)

// Version identifies a Ghidra install.
type Version struct {
	Name    string
	Version string
	Release string
}

func (v Version) String() string {
	if v.Release == "" {
		return v.Name + " " + v.Version
	}
	return v.Name + " " + v.Version + " " + v.Release
}

// ReadVersion reads Ghidra/application.properties from the install dir.
// A missing file yields an "unknown" version rather than an error.
func ReadVersion(installDir string) (Version, error) {
	path := filepath.Join(installDir, "Ghidra", "application.properties")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Version{Name: "Ghidra", Version: "unknown"}, nil
	}
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return Version{}, err
	}
	return Version{
		Name:    p.GetString("application.name", "Ghidra"),
		Version: p.GetString("application.version", "unknown"),
		Release: p.GetString("application.release.name", ""),
	}, nil
}
