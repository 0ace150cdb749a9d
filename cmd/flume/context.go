package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flume/internal/configfile"
	"flume/internal/daemonctl"
	"flume/internal/ipc"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/manager"
	"flume/internal/settings"
	"flume/internal/store"
)

type commandContext struct {
	configFlag   *string
	settingsFlag *string
	debugFlag    *bool

	settingsOnce sync.Once
	settings     *settings.Settings
	settingsPath string
	settingsErr  error
}

func newCommandContext(configFlag, settingsFlag *string, debugFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		settingsFlag: settingsFlag,
		debugFlag:    debugFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) debug() bool {
	return c.debugFlag != nil && *c.debugFlag
}

func (c *commandContext) ensureSettings() (*settings.Settings, error) {
	c.settingsOnce.Do(func() {
		var path string
		if c.settingsFlag != nil {
			path = strings.TrimSpace(*c.settingsFlag)
		}
		loaded, resolvedPath, _, err := settings.Load(path)
		if err != nil {
			c.settingsErr = err
			return
		}
		c.settings = loaded
		c.settingsPath = resolvedPath
	})
	return c.settings, c.settingsErr
}

// consoleLogger builds the stdout logger CLI commands use. --debug
// lowers the level regardless of settings.
func (c *commandContext) consoleLogger() (*slog.Logger, error) {
	cfg, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if c.debug() {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level:  level,
		Format: "console",
	})
}

// newManager constructs the coordinator for this invocation. The
// caller owns Close.
func (c *commandContext) newManager(mutate func(*manager.Options)) (*manager.Manager, error) {
	cfg, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	logger, err := c.consoleLogger()
	if err != nil {
		return nil, err
	}
	opts := manager.Options{
		ConfigPath: c.configPath(),
		Debug:      c.debug(),
		Settings:   cfg,
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return manager.New(opts)
}

// findDocument resolves and loads the task document without building a
// manager.
func (c *commandContext) findDocument() (*configfile.Document, error) {
	path, err := configfile.Find(c.configPath(), false)
	if err != nil {
		return nil, err
	}
	return configfile.Load(path)
}

// scopeLock builds the lock manager for the resolved document scope.
func (c *commandContext) scopeLock() (*lockfile.Manager, error) {
	doc, err := c.findDocument()
	if err != nil {
		return nil, err
	}
	return lockfile.New(doc.Base, doc.Name), nil
}

// dialDaemon connects to the daemon holding this scope's lock.
func (c *commandContext) dialDaemon() (*ipc.Client, error) {
	cfg, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	lock, err := c.scopeLock()
	if err != nil {
		return nil, err
	}
	return daemonctl.Dial(lock, time.Duration(cfg.Daemon.ClientTimeoutSeconds)*time.Second)
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// openStore opens the scope's database directly, bypassing the
// manager. Used by read-only commands falling back from IPC.
func (c *commandContext) openStore() (*store.Store, error) {
	cfg, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	doc, err := c.findDocument()
	if err != nil {
		return nil, err
	}
	return store.Open(store.Options{
		ConfigBase:        doc.Base,
		ConfigName:        doc.Name,
		OverridePath:      cfg.Database.Path,
		BusyTimeoutMillis: cfg.Database.BusyTimeoutMillis,
	})
}

// databasePath resolves the scope's database location without opening
// it.
func (c *commandContext) databasePath() (string, error) {
	cfg, err := c.ensureSettings()
	if err != nil {
		return "", err
	}
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	doc, err := c.findDocument()
	if err != nil {
		return "", err
	}
	return store.DatabasePath(doc.Base, doc.Name), nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func formatCount(n int) string {
	return fmt.Sprintf("%d", n)
}
