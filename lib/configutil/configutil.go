package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// layers returns the files that make up a config, lowest priority first.
// "config.json5" becomes "config.json5" and "config.local.json5".
func layers(name string) []string {
	ext := filepath.Ext(name)
	return []string{name, strings.TrimSuffix(name, ext) + ".local" + ext}
}

// readLayer decodes path into out. Missing and empty files report false.
func readLayer[T any](path string, out *T) (bool, error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(contents, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads a json5 config file and merges its ".local" sibling on
// top of it. It returns os.ErrNotExist when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false
	for i, path := range layers(name) {
		var layer T
		ok, err := readLayer(path, &layer)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if err := mergo.Merge(&out, layer, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		if i > 0 {
			slog.Info("merging config with local overrides", "local", path)
		}
		found = true
	}
	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadConfigOr is ReadConfig but missing files are not an error, and any
// field the files leave at its zero value is filled from defaults.
func ReadConfigOr[T any](name string, defaults T) (T, error) {
	out, err := ReadConfig[T](name)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return out, err
	}
	if err := mergo.Merge(&out, defaults); err != nil {
		return out, err
	}
	return out, nil
}

// Locate walks from dir up to the filesystem root looking for a config
// named name (or its ".local" variant) and returns the first match.
func Locate(dir, name string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(current, name)
		for _, path := range layers(candidate) {
			if _, err := os.Stat(path); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", os.ErrNotExist
		}
		current = parent
	}
}
