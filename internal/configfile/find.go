package configfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flume/internal/fileutil"
)

// DefaultFileName is the document searched for when no path is given.
const DefaultFileName = "config.yml"

// skeleton is the document written for --create.
const skeleton = "tasks: {}\n"

// NotFoundError lists every location that was checked.
type NotFoundError struct {
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no configuration file found, tried: %s", strings.Join(e.Tried, ", "))
}

// Find resolves the configuration document location.
//
// A path containing a separator (or a leading ~) is used as-is. A bare
// file name, or the empty string meaning DefaultFileName, is searched
// for under $XDG_CONFIG_HOME/flume, ~/.flume, and the working
// directory in that order. With create set, a missing document is
// written as an empty skeleton at the first search location.
func Find(explicit string, create bool) (string, error) {
	name := strings.TrimSpace(explicit)
	if name == "" {
		name = DefaultFileName
	}

	if strings.ContainsRune(name, os.PathSeparator) || strings.HasPrefix(name, "~") {
		expanded, err := fileutil.ExpandPath(name)
		if err != nil {
			return "", err
		}
		resolved, err := filepath.Abs(expanded)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		switch _, err := os.Stat(resolved); {
		case err == nil:
			return resolved, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat config: %w", err)
		}
		if create {
			return resolved, writeSkeleton(resolved)
		}
		return "", &NotFoundError{Tried: []string{resolved}}
	}

	dirs, err := searchDirs()
	if err != nil {
		return "", err
	}
	tried := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}
	if create {
		target := filepath.Join(dirs[0], name)
		return target, writeSkeleton(target)
	}
	return "", &NotFoundError{Tried: tried}
}

// searchDirs returns candidate directories in precedence order.
func searchDirs() ([]string, error) {
	var dirs []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "flume"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "flume"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".flume"))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if len(dirs) == 0 {
		return nil, errors.New("unable to determine configuration search path")
	}
	return dirs, nil
}

func writeSkeleton(path string) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(skeleton), 0o644)
}
