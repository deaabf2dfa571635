// Package validation checks user supplied paths and identifiers before they
// reach the search engine.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxPathLength is the longest path accepted.
const MaxPathLength = 4096

// PathValidator validates and normalizes file system paths.
type PathValidator struct {
	// AllowHomeExpansion permits a leading "~/".
	AllowHomeExpansion bool
	// MaxPathLength is the maximum allowed path length
	MaxPathLength int
}

// NewPathValidator creates a validator with the default settings.
func NewPathValidator() *PathValidator {
	return &PathValidator{
		AllowHomeExpansion: true,
		MaxPathLength:      MaxPathLength,
	}
}

// ValidateAndSanitize validates path and returns its cleaned absolute form.
func (v *PathValidator) ValidateAndSanitize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if len(path) > v.MaxPathLength {
		return "", fmt.Errorf("path too long (max %d characters)", v.MaxPathLength)
	}
	if err := validateCharacters(path); err != nil {
		return "", err
	}

	normalized, err := v.normalizePath(path)
	if err != nil {
		return "", fmt.Errorf("path normalization failed: %w", err)
	}
	return normalized, nil
}

func validateCharacters(path string) error {
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null bytes")
	}
	for _, char := range path {
		if char < 32 && char != '\t' {
			return fmt.Errorf("path contains control characters")
		}
	}
	return nil
}

func (v *PathValidator) normalizePath(path string) (string, error) {
	switch {
	case path == "~" && v.AllowHomeExpansion:
		return os.UserHomeDir()
	case strings.HasPrefix(path, "~/") && v.AllowHomeExpansion:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	case strings.HasPrefix(path, "~"):
		return "", fmt.Errorf("tilde expansion not allowed or invalid tilde usage")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	return filepath.Clean(abs), nil
}

// ValidateRoot validates a search root, which must be an existing directory.
func (v *PathValidator) ValidateRoot(path string) (string, error) {
	root, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("search root does not exist: %s", root)
		}
		return "", fmt.Errorf("checking search root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("search root is not a directory: %s", root)
	}
	return root, nil
}

// ValidateDirectory validates a directory path, creating it when asked.
func (v *PathValidator) ValidateDirectory(path string, createIfNotExist bool) (string, error) {
	validatedPath, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(validatedPath)
	switch {
	case os.IsNotExist(err):
		if createIfNotExist {
			if mkErr := os.MkdirAll(validatedPath, 0o755); mkErr != nil {
				return "", fmt.Errorf("failed to create directory: %w", mkErr)
			}
		}
	case err != nil:
		return "", fmt.Errorf("checking directory: %w", err)
	case !info.IsDir():
		return "", fmt.Errorf("path exists but is not a directory: %s", validatedPath)
	}
	return validatedPath, nil
}

// ValidateFile validates a path that must not name a directory.
func (v *PathValidator) ValidateFile(path string) (string, error) {
	validatedPath, err := v.ValidateAndSanitize(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(validatedPath); err == nil && info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", validatedPath)
	}
	return validatedPath, nil
}
