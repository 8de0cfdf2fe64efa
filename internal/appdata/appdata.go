// Package appdata resolves the per-user directories the application
// stores its state in: the browser login profile, job working
// directories, and the default download destination.
package appdata

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

const appDirName = ".riodl"

// Paths is the resolved directory layout.
type Paths struct {
	// DataDir is the root of all application state.
	DataDir string
	// ProfileDir holds the persistent browser profile.
	ProfileDir string
	// JobsDir holds one working directory per job.
	JobsDir string
	// DefaultDownloadDir is the fallback destination for downloads.
	DefaultDownloadDir string
}

// Resolve computes the directory layout and creates the data and jobs
// directories.  dataDir overrides the default ~/.riodl when non-empty.
func Resolve(dataDir string) (Paths, error) {
	home, err := homedir.Dir()
	if err != nil {
		return Paths{}, err
	}

	if dataDir == "" {
		dataDir = filepath.Join(home, appDirName)
	}

	paths := Paths{
		DataDir:            dataDir,
		ProfileDir:         filepath.Join(dataDir, "browser_profile"),
		JobsDir:            filepath.Join(dataDir, "jobs"),
		DefaultDownloadDir: filepath.Join(home, "Downloads"),
	}

	if err := os.MkdirAll(paths.JobsDir, 0755); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// ClearProfile removes the persistent browser profile, logging the
// user out of every site.
func (p Paths) ClearProfile() error {
	return os.RemoveAll(p.ProfileDir)
}

// HasProfile reports whether a login profile exists.
func (p Paths) HasProfile() bool {
	_, err := os.Stat(p.ProfileDir)
	return err == nil
}
