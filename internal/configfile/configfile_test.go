package configfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPreservesDeclarationOrder(t *testing.T) {
	path := writeConfig(t, `
tasks:
  charlie:
    interval: 1h
  alpha:
    priority: 5
  bravo: {}
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"charlie", "alpha", "bravo"}
	if !reflect.DeepEqual(doc.TaskOrder, want) {
		t.Fatalf("TaskOrder = %v, want %v", doc.TaskOrder, want)
	}
	if doc.Name != "config" {
		t.Errorf("Name = %q, want config", doc.Name)
	}
	if doc.Base != filepath.Dir(path) {
		t.Errorf("Base = %q, want %q", doc.Base, filepath.Dir(path))
	}
	if got := doc.Tasks["alpha"].Priority; got != 5 {
		t.Errorf("alpha priority = %d, want 5", got)
	}
	if got := doc.Tasks["bravo"].Priority; got != DefaultPriority {
		t.Errorf("bravo priority = %d, want default %d", got, DefaultPriority)
	}
}

func TestTasksByPriorityTieBreaksByDeclaration(t *testing.T) {
	path := writeConfig(t, `
tasks:
  alpha:
    priority: 30
  bravo:
    priority: 10
  charlie: {}
  delta:
    priority: 10
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"bravo", "delta", "alpha", "charlie"}
	if got := doc.TasksByPriority(); !reflect.DeepEqual(got, want) {
		t.Fatalf("TasksByPriority = %v, want %v", got, want)
	}
}

func TestMatchTasks(t *testing.T) {
	path := writeConfig(t, `
tasks:
  Movies-HD: {}
  movies-sd: {}
  series: {}
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name          string
		patterns      []string
		wantMatched   []string
		wantUnmatched []string
	}{
		{
			name:        "exact case insensitive",
			patterns:    []string{"MOVIES-hd"},
			wantMatched: []string{"Movies-HD"},
		},
		{
			name:        "glob",
			patterns:    []string{"movies-*"},
			wantMatched: []string{"Movies-HD", "movies-sd"},
		},
		{
			name:          "unmatched reported",
			patterns:      []string{"series", "podcasts"},
			wantMatched:   []string{"series"},
			wantUnmatched: []string{"podcasts"},
		},
		{
			name:        "declaration order regardless of pattern order",
			patterns:    []string{"series", "movies-*"},
			wantMatched: []string{"Movies-HD", "movies-sd", "series"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, unmatched := doc.MatchTasks(tt.patterns)
			if !reflect.DeepEqual(matched, tt.wantMatched) {
				t.Errorf("matched = %v, want %v", matched, tt.wantMatched)
			}
			if !reflect.DeepEqual(unmatched, tt.wantUnmatched) {
				t.Errorf("unmatched = %v, want %v", unmatched, tt.wantUnmatched)
			}
		})
	}
}

func TestTaskFingerprintStable(t *testing.T) {
	path := writeConfig(t, `
tasks:
  feed:
    url: https://example.org/rss
    accept:
      - "*.mkv"
      - "*.mp4"
    limits:
      rate: 3
      burst: 9
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first, err := doc.TaskFingerprint("feed")
	if err != nil {
		t.Fatalf("TaskFingerprint: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := doc.TaskFingerprint("feed")
		if err != nil {
			t.Fatalf("TaskFingerprint: %v", err)
		}
		if again != first {
			t.Fatalf("fingerprint changed between calls: %s vs %s", first, again)
		}
	}

	doc.Tasks["feed"].Settings["url"] = "https://example.org/atom"
	changed, err := doc.TaskFingerprint("feed")
	if err != nil {
		t.Fatalf("TaskFingerprint: %v", err)
	}
	if changed == first {
		t.Fatal("fingerprint did not change after settings change")
	}

	if _, err := doc.TaskFingerprint("missing"); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestScheduleParsing(t *testing.T) {
	path := writeConfig(t, `
tasks:
  feed: {}
schedules:
  - tasks: [feed]
    interval: 30m
  - tasks: ["*"]
    cron: "0 4 * * *"
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Schedules) != 2 {
		t.Fatalf("schedules = %d, want 2", len(doc.Schedules))
	}
	if doc.Schedules[0].Interval != 30*time.Minute {
		t.Errorf("interval = %v, want 30m", doc.Schedules[0].Interval)
	}
	if doc.Schedules[1].Cron != "0 4 * * *" {
		t.Errorf("cron = %q", doc.Schedules[1].Cron)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, `
tasks:
  zulu:
    priority: 2
  alpha:
    url: https://example.org/rss
schedules:
  - tasks: [zulu]
    interval: 1h
`)
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc.Path = filepath.Join(t.TempDir(), "saved.yml")
	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(doc.Path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.TaskOrder, doc.TaskOrder) {
		t.Errorf("TaskOrder = %v, want %v", reloaded.TaskOrder, doc.TaskOrder)
	}
	if got := reloaded.Tasks["zulu"].Priority; got != 2 {
		t.Errorf("zulu priority = %d, want 2", got)
	}
	if len(reloaded.Schedules) != 1 || reloaded.Schedules[0].Interval != time.Hour {
		t.Errorf("schedules not preserved: %+v", reloaded.Schedules)
	}
}

func TestLoadRejectsInvalidUTF8(t *testing.T) {
	path := writeConfig(t, "tasks:\n  feed: {}\n")
	if err := os.WriteFile(path, []byte{'t', 0xff, 0xfe, ':'}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "UTF-8") {
		t.Fatalf("err = %v, want UTF-8 complaint", err)
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	path := writeConfig(t, "")
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.TaskOrder) != 0 {
		t.Fatalf("TaskOrder = %v, want empty", doc.TaskOrder)
	}
	errs := Validate(doc)
	if len(errs) != 1 || errs[0].Pointer != "/tasks" {
		t.Fatalf("Validate = %v, want single /tasks error", errs)
	}
}

func TestLoadDuplicateTask(t *testing.T) {
	path := writeConfig(t, `
tasks:
  feed: {}
  feed:
    priority: 1
`)
	_, err := Load(path)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if !strings.Contains(parseErr.Error(), "defined twice") {
		t.Errorf("err = %v, want defined twice", parseErr)
	}
}

func TestParseErrorHints(t *testing.T) {
	path := writeConfig(t, "tasks:\n\tbad: indentation\n")
	_, err := Load(path)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	hints := parseErr.Hints()
	if len(hints) == 0 || !strings.Contains(hints[0], "Malformed configuration file") {
		t.Errorf("hints = %v", hints)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantPointer string
	}{
		{
			name:        "non mapping task",
			content:     "tasks:\n  feed: just a string\n",
			wantPointer: "/tasks/feed",
		},
		{
			name:        "priority not integer",
			content:     "tasks:\n  feed:\n    priority: high\n",
			wantPointer: "/tasks/feed/priority",
		},
		{
			name:        "unknown root",
			content:     "tasks:\n  feed: {}\npresets:\n  x: {}\n",
			wantPointer: "/presets",
		},
		{
			name:        "schedule both interval and cron",
			content:     "tasks:\n  feed: {}\nschedules:\n  - tasks: [feed]\n    interval: 1h\n    cron: \"0 * * * *\"\n",
			wantPointer: "/schedules/0",
		},
		{
			name:        "schedule missing trigger",
			content:     "tasks:\n  feed: {}\nschedules:\n  - tasks: [feed]\n",
			wantPointer: "/schedules/0",
		},
		{
			name:        "schedule bad cron",
			content:     "tasks:\n  feed: {}\nschedules:\n  - tasks: [feed]\n    cron: \"not cron\"\n",
			wantPointer: "/schedules/0/cron",
		},
		{
			name:        "schedule without tasks",
			content:     "tasks:\n  feed: {}\nschedules:\n  - interval: 1h\n",
			wantPointer: "/schedules/0/tasks",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load(writeConfig(t, tt.content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			errs := Validate(doc)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, verr := range errs {
				if verr.Pointer == tt.wantPointer {
					found = true
				}
			}
			if !found {
				t.Errorf("no error at %s, got %v", tt.wantPointer, errs)
			}
		})
	}

	t.Run("valid document", func(t *testing.T) {
		doc, err := Load(writeConfig(t, `
tasks:
  feed:
    priority: 3
schedules:
  - tasks: [feed]
    cron: "@daily"
`))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if errs := Validate(doc); len(errs) != 0 {
			t.Fatalf("Validate = %v, want none", errs)
		}
	})
}

func TestFindExplicitPath(t *testing.T) {
	path := writeConfig(t, "tasks:\n  feed: {}\n")
	found, err := Find(path, false)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found != path {
		t.Errorf("Find = %q, want %q", found, path)
	}
}

func TestFindSearchesConfigDirs(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	if _, err := Find("config.yml", false); err == nil {
		t.Fatal("expected not-found error")
	} else {
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("err = %v, want NotFoundError", err)
		}
		if len(notFound.Tried) != 3 {
			t.Errorf("tried %d locations, want 3: %v", len(notFound.Tried), notFound.Tried)
		}
	}

	target := filepath.Join(xdg, "flume", "config.yml")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(target, []byte("tasks: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	found, err := Find("", false)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found != target {
		t.Errorf("Find = %q, want %q", found, target)
	}
}

func TestFindCreatesSkeleton(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	path, err := Find("config.yml", true)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if want := filepath.Join(xdg, "flume", "config.yml"); path != want {
		t.Errorf("Find = %q, want %q", path, want)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load skeleton: %v", err)
	}
	if len(doc.TaskOrder) != 0 {
		t.Errorf("skeleton has tasks: %v", doc.TaskOrder)
	}
}
