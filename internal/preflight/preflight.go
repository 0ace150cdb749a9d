package preflight

import (
	"path/filepath"

	"flume/internal/configfile"
	"flume/internal/deps"
	"flume/internal/lockfile"
	"flume/internal/settings"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Scope bundles everything RunAll inspects.
type Scope struct {
	Doc          *configfile.Document
	Settings     *settings.Settings
	DatabasePath string
	Lock         *lockfile.Manager
}

// RunAll executes all applicable checks for the scope. Checks for
// optional facilities run only when configured.
func RunAll(scope Scope) []Result {
	var results []Result

	if scope.Doc != nil {
		results = append(results, CheckDirectoryAccess("Config directory", filepath.Dir(scope.Doc.Path)))
	}
	if scope.DatabasePath != "" {
		results = append(results, CheckDatabaseFile(scope.DatabasePath))
	}
	if scope.Settings != nil && scope.Settings.Logging.Dir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", scope.Settings.Logging.Dir))
	}
	if scope.Lock != nil {
		results = append(results, CheckLockState(scope.Lock))
	}

	for _, status := range CheckHelpers(scope.Doc) {
		results = append(results, helperResult(status))
	}
	return results
}

func helperResult(status deps.Status) Result {
	result := Result{Name: "Helper: " + status.Name}
	switch {
	case status.Available:
		result.Passed = true
		result.Detail = status.Command
	case status.Optional:
		// Optional helpers never fail the check run.
		result.Passed = true
		result.Detail = status.Detail + " (optional)"
	default:
		result.Detail = status.Detail
	}
	return result
}
