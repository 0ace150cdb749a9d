package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"flume/internal/configfile"
	"flume/internal/deps"
	"flume/internal/lockfile"
)

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabaseFile verifies the database location. A missing file
// passes when its directory is writable, since first use creates it.
func CheckDatabaseFile(path string) Result {
	const name = "Database"

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			dir := CheckDirectoryAccess(name, filepath.Dir(path))
			if dir.Passed {
				return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
			}
			return Result{Name: name, Detail: dir.Detail}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckLockState reports who holds the scope lock. Contention is
// informational, not a failure: a live daemon accepts delegated work.
func CheckLockState(lock *lockfile.Manager) Result {
	const name = "Scope lock"

	if lock == nil {
		return Result{Name: name, Detail: "no lock manager"}
	}
	info, err := lock.Check()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", lock.Path(), err)}
	}
	switch info.State {
	case lockfile.HeldByOther:
		if info.Port > 0 {
			return Result{Name: name, Passed: true,
				Detail: fmt.Sprintf("held by daemon PID %d (port %d)", info.PID, info.Port)}
		}
		return Result{Name: name, Passed: true,
			Detail: fmt.Sprintf("held by PID %d", info.PID)}
	case lockfile.HeldBySelf:
		return Result{Name: name, Passed: true, Detail: "held by this process"}
	default:
		return Result{Name: name, Passed: true, Detail: "free"}
	}
}

// CheckHelpers evaluates every helper binary the document's tasks
// declare through their `requires` options, plus the well-known
// optional helpers.
func CheckHelpers(doc *configfile.Document) []deps.Status {
	requirements := deps.Known()
	seen := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		seen[req.Command] = struct{}{}
	}
	if doc != nil {
		for _, name := range doc.TasksByPriority() {
			for _, helper := range deps.RequiredHelpers(doc.Tasks[name].Settings) {
				if _, ok := seen[helper]; ok {
					continue
				}
				seen[helper] = struct{}{}
				requirements = append(requirements, deps.Requirement{
					Name:        helper,
					Command:     helper,
					Description: fmt.Sprintf("Required by task %q", name),
				})
			}
		}
	}
	return deps.CheckBinaries(requirements)
}
