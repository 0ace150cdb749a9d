package configfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultPriority is the priority assigned to tasks that do not declare
// one. It is the maximum value, so explicit priorities always run first.
const DefaultPriority = 65535

// TaskConfig holds one task's configuration.
type TaskConfig struct {
	// Priority orders execution, ascending. Ties run in declaration order.
	Priority int
	// Settings is the task's full mapping as written, priority included.
	Settings map[string]any
	// NonMapping holds the raw body when the task was not declared as a
	// mapping. Validation rejects such tasks.
	NonMapping any
}

// Schedule describes a background execution rule for daemon mode.
type Schedule struct {
	// Tasks holds glob patterns matched against task names.
	Tasks []string
	// Interval and Cron are mutually exclusive.
	Interval time.Duration
	Cron     string
}

// Document is the parsed task document.
type Document struct {
	Path      string
	Name      string // file name without extension, scopes lock and db files
	Base      string // directory containing the document
	Tasks     map[string]TaskConfig
	TaskOrder []string
	Schedules []Schedule
	Variables map[string]any
	// UnknownRoots records unrecognized top-level keys for validation.
	UnknownRoots []string
}

// ParseError wraps a YAML decode failure with operator guidance.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	msg := strings.Join(strings.Fields(e.Err.Error()), " ")
	return fmt.Sprintf("parse %s: %s", e.Path, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Hints returns the common-mistake guidance printed after a parse failure.
func (e *ParseError) Hints() []string {
	return []string{
		"Malformed configuration file. Common reasons:",
		"  o Indentation error",
		"  o Missing : from end of the line",
		"  o Non UTF-8 characters",
		"  o If text contains any of :[]{}% characters it must be single-quoted",
	}
}

// Load reads and parses the document at path.
func Load(pathValue string) (*Document, error) {
	data, err := os.ReadFile(pathValue)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("config file %s must be UTF-8 encoded", pathValue)
	}

	doc := &Document{
		Path:      pathValue,
		Name:      strings.TrimSuffix(filepath.Base(pathValue), filepath.Ext(pathValue)),
		Base:      filepath.Dir(pathValue),
		Tasks:     map[string]TaskConfig{},
		Variables: map[string]any{},
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Path: pathValue, Err: err}
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty document is valid; it simply declares no tasks.
		return doc, nil
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: pathValue, Err: fmt.Errorf("root must be a mapping, got %s", nodeKind(mapping))}
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		value := mapping.Content[i+1]
		switch key.Value {
		case "tasks":
			if err := doc.decodeTasks(value); err != nil {
				return nil, err
			}
		case "schedules":
			if err := doc.decodeSchedules(value); err != nil {
				return nil, err
			}
		case "variables":
			if err := value.Decode(&doc.Variables); err != nil {
				return nil, &ParseError{Path: pathValue, Err: fmt.Errorf("variables: %w", err)}
			}
		default:
			// Unknown roots surface as validation errors, not parse errors.
			doc.UnknownRoots = append(doc.UnknownRoots, key.Value)
		}
	}
	return doc, nil
}

func (d *Document) decodeTasks(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &ParseError{Path: d.Path, Err: fmt.Errorf("tasks must be a mapping, got %s", nodeKind(node))}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		nameNode := node.Content[i]
		valueNode := node.Content[i+1]
		name := nameNode.Value
		if _, exists := d.Tasks[name]; exists {
			return &ParseError{Path: d.Path, Err: fmt.Errorf("task %s is defined twice", name)}
		}

		settings := map[string]any{}
		var nonMapping any
		if valueNode.Kind == yaml.MappingNode {
			if err := valueNode.Decode(&settings); err != nil {
				return &ParseError{Path: d.Path, Err: fmt.Errorf("task %s: %w", name, err)}
			}
		} else if !(valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null") {
			// Non-mapping task bodies are preserved so validation can
			// point at them.
			if err := valueNode.Decode(&nonMapping); err != nil {
				return &ParseError{Path: d.Path, Err: fmt.Errorf("task %s: %w", name, err)}
			}
		}

		d.Tasks[name] = TaskConfig{
			Priority:   taskPriority(settings),
			Settings:   settings,
			NonMapping: nonMapping,
		}
		d.TaskOrder = append(d.TaskOrder, name)
	}
	return nil
}

type scheduleYAML struct {
	Tasks    []string `yaml:"tasks"`
	Interval string   `yaml:"interval"`
	Cron     string   `yaml:"cron"`
}

func (d *Document) decodeSchedules(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	var raw []scheduleYAML
	if err := node.Decode(&raw); err != nil {
		return &ParseError{Path: d.Path, Err: fmt.Errorf("schedules: %w", err)}
	}
	for _, entry := range raw {
		schedule := Schedule{Tasks: entry.Tasks, Cron: strings.TrimSpace(entry.Cron)}
		if interval := strings.TrimSpace(entry.Interval); interval != "" {
			parsed, err := time.ParseDuration(interval)
			if err != nil {
				return &ParseError{Path: d.Path, Err: fmt.Errorf("schedules: interval %q: %w", interval, err)}
			}
			schedule.Interval = parsed
		}
		d.Schedules = append(d.Schedules, schedule)
	}
	return nil
}

func taskPriority(settings map[string]any) int {
	raw, ok := settings["priority"]
	if !ok {
		return DefaultPriority
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return DefaultPriority
	}
}

// TasksByPriority returns task names ordered ascending by priority with
// declaration-order tie-breaks.
func (d *Document) TasksByPriority() []string {
	names := make([]string, len(d.TaskOrder))
	copy(names, d.TaskOrder)
	sort.SliceStable(names, func(i, j int) bool {
		return d.Tasks[names[i]].Priority < d.Tasks[names[j]].Priority
	})
	return names
}

// MatchTasks resolves glob patterns against declared task names,
// case-insensitively. It returns matches in declaration order plus the
// patterns that matched nothing.
func (d *Document) MatchTasks(patterns []string) (matched []string, unmatched []string) {
	selected := map[string]struct{}{}
	for _, pattern := range patterns {
		lowered := strings.ToLower(strings.TrimSpace(pattern))
		if lowered == "" {
			continue
		}
		found := false
		for _, name := range d.TaskOrder {
			lowerName := strings.ToLower(name)
			if lowerName == lowered {
				selected[name] = struct{}{}
				found = true
				continue
			}
			if ok, err := path.Match(lowered, lowerName); err == nil && ok {
				selected[name] = struct{}{}
				found = true
			}
		}
		if !found {
			unmatched = append(unmatched, pattern)
		}
	}
	for _, name := range d.TaskOrder {
		if _, ok := selected[name]; ok {
			matched = append(matched, name)
		}
	}
	return matched, unmatched
}

// TaskFingerprint returns a stable hash of one task's configuration,
// used to detect changes between runs.
func (d *Document) TaskFingerprint(name string) (string, error) {
	task, ok := d.Tasks[name]
	if !ok {
		return "", fmt.Errorf("unknown task %q", name)
	}
	encoded, err := canonicalYAML(task.Settings)
	if err != nil {
		return "", fmt.Errorf("fingerprint task %s: %w", name, err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalYAML marshals a mapping with sorted keys so semantically
// equal configurations hash identically.
func canonicalYAML(value any) ([]byte, error) {
	return yaml.Marshal(canonicalize(value))
}

func canonicalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			var keyNode yaml.Node
			keyNode.SetString(k)
			valueNode := &yaml.Node{}
			if err := valueNode.Encode(canonicalize(v[k])); err != nil {
				continue
			}
			node.Content = append(node.Content, &keyNode, valueNode)
		}
		return node
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}

// Save writes the document back to its path, preserving task order.
func (d *Document) Save() error {
	root := &yaml.Node{Kind: yaml.MappingNode}

	tasksNode := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range d.TaskOrder {
		var keyNode yaml.Node
		keyNode.SetString(name)
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(d.Tasks[name].Settings); err != nil {
			return fmt.Errorf("encode task %s: %w", name, err)
		}
		tasksNode.Content = append(tasksNode.Content, &keyNode, valueNode)
	}
	var tasksKey yaml.Node
	tasksKey.SetString("tasks")
	root.Content = append(root.Content, &tasksKey, tasksNode)

	if len(d.Schedules) > 0 {
		schedulesNode := &yaml.Node{}
		raw := make([]scheduleYAML, 0, len(d.Schedules))
		for _, schedule := range d.Schedules {
			entry := scheduleYAML{Tasks: schedule.Tasks, Cron: schedule.Cron}
			if schedule.Interval > 0 {
				entry.Interval = schedule.Interval.String()
			}
			raw = append(raw, entry)
		}
		if err := schedulesNode.Encode(raw); err != nil {
			return fmt.Errorf("encode schedules: %w", err)
		}
		var schedulesKey yaml.Node
		schedulesKey.SetString("schedules")
		root.Content = append(root.Content, &schedulesKey, schedulesNode)
	}

	if len(d.Variables) > 0 {
		variablesNode := &yaml.Node{}
		if err := variablesNode.Encode(d.Variables); err != nil {
			return fmt.Errorf("encode variables: %w", err)
		}
		var variablesKey yaml.Node
		variablesKey.SetString("variables")
		root.Content = append(root.Content, &variablesKey, variablesNode)
	}

	encoded, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(d.Path, encoded, 0o644)
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
