package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrEmptyPath     = errors.New("path is empty")
	ErrPathTraversal = errors.New("path escapes its base directory")
	ErrAbsolutePath  = errors.New("absolute path not permitted")
	ErrPathExtension = errors.New("file extension not permitted")
)

// PathPolicy describes which file paths a loader accepts.
type PathPolicy struct {
	AllowAbsolute bool
	// Extensions, when set, lists the accepted lowercase suffixes (".json").
	Extensions []string
}

// ConfigFilePolicy accepts JSON config files anywhere on disk.
var ConfigFilePolicy = PathPolicy{AllowAbsolute: true, Extensions: []string{".json"}}

// Clean returns the cleaned path or the reason it was rejected.
func (p PathPolicy) Clean(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrEmptyPath
	}

	cleaned := filepath.Clean(path)
	if slices.Contains(strings.Split(filepath.ToSlash(cleaned), "/"), "..") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	if filepath.IsAbs(cleaned) && !p.AllowAbsolute {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, path)
	}
	if len(p.Extensions) > 0 && !slices.Contains(p.Extensions, strings.ToLower(filepath.Ext(cleaned))) {
		return "", fmt.Errorf("%w: %s", ErrPathExtension, filepath.Ext(cleaned))
	}
	return cleaned, nil
}
