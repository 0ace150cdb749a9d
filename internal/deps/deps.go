// Package deps checks availability of the optional external helpers
// some tasks lean on for fetching or post-processing content.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external helper a task or feature relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a helper.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// MissingError reports a helper a task needs but the host lacks. It is
// recoverable: the task is skipped with guidance rather than crashing
// the process.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("helper %q is not installed", e.Name)
}

// Guidance returns the operator hint logged alongside the error.
func (e *MissingError) Guidance() string {
	return fmt.Sprintf("Install %q and make sure it is on PATH, then rerun the task", e.Name)
}

// Known returns the helpers flume knows how to use. All are optional;
// tasks declare what they actually need via the `requires` option.
func Known() []Requirement {
	return []Requirement{
		{Name: "curl", Command: "curl", Description: "HTTP fetch fallback for feed sources", Optional: true},
		{Name: "git", Command: "git", Description: "Repository-backed feed sources", Optional: true},
		{Name: "sqlite3", Command: "sqlite3", Description: "Manual database inspection", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports
// availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckTaskRequirements inspects a task's options for a `requires`
// list of helper binaries and returns a MissingError for the first one
// absent from PATH.
func CheckTaskRequirements(options map[string]any) error {
	for _, name := range RequiredHelpers(options) {
		if _, err := exec.LookPath(name); err != nil {
			return &MissingError{Name: name}
		}
	}
	return nil
}

// RequiredHelpers extracts the helper names a task's `requires` option
// declares. The option accepts a single name or a list.
func RequiredHelpers(options map[string]any) []string {
	raw, ok := options["requires"]
	if !ok {
		return nil
	}
	var names []string
	switch v := raw.(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			names = append(names, trimmed)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				names = append(names, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				names = append(names, strings.TrimSpace(s))
			}
		}
	}
	return names
}
