package validation

import (
	"os"
	"path/filepath"
)

// PathHandler resolves the tool's data paths, falling back to the defaults
// under ~/.usages.
type PathHandler struct {
	validator *PathValidator
}

func NewPathHandler() *PathHandler {
	return &PathHandler{validator: NewPathValidator()}
}

func (ph *PathHandler) dataPath(userPath string, elem ...string) (string, error) {
	if userPath != "" {
		return userPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{homeDir, ".usages"}, elem...)...), nil
}

// DBPath returns the validated history database path.
func (ph *PathHandler) DBPath(userPath string) (string, error) {
	path, err := ph.dataPath(userPath, "history.db")
	if err != nil {
		return "", err
	}
	return ph.validator.ValidateFile(path)
}

// IndexPath returns the validated identifier index path. Bleve indexes are
// directories.
func (ph *PathHandler) IndexPath(userPath string) (string, error) {
	path, err := ph.dataPath(userPath, "index.bleve")
	if err != nil {
		return "", err
	}
	return ph.validator.ValidateDirectory(path, false)
}

// Root returns the validated search root, defaulting to the working directory.
func (ph *PathHandler) Root(userPath string) (string, error) {
	if userPath == "" {
		userPath = "."
	}
	return ph.validator.ValidateRoot(userPath)
}
