package manager

import (
	"context"
	"errors"
	"fmt"

	"flume/internal/configfile"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/store"
)

// Initialize runs the fixed startup sequence: locate the document, open
// the store, fire the pre-load hook, parse, fire the pre-validate hook,
// validate, run collaborator schema upgrades, and announce startup.
// The ordering is load-bearing: hooks that need the database must not
// run before the store opens, and nothing validates a document that
// failed to parse. Every failure is fatal and already wrapped with its
// exit status.
func (m *Manager) Initialize(ctx context.Context) error {
	path, err := configfile.Find(m.opts.ConfigPath, m.opts.Create)
	if err != nil {
		var notFound *configfile.NotFoundError
		if errors.As(err, &notFound) {
			for _, tried := range notFound.Tried {
				m.logger.Error("config file not found", logging.String("tried", tried))
			}
			m.logger.Error("Tip: run `flume config init` to create a starter configuration.")
		}
		return fatal(err)
	}
	m.configPath = path
	base, name := scopeFromPath(path)
	m.lock = lockfile.New(base, name, lockfile.WithLogger(m.logger))
	m.logger.Debug("config located", logging.String("path", path))

	st, err := store.Open(store.Options{
		ConfigBase:        base,
		ConfigName:        name,
		OverridePath:      m.settings.Database.Path,
		Test:              m.opts.Test,
		Reset:             m.opts.ResetDB,
		BusyTimeoutMillis: m.settings.Database.BusyTimeoutMillis,
		Logger:            m.logger,
	})
	if err != nil {
		var perm *store.PermissionError
		if errors.As(err, &perm) {
			m.logger.Error(perm.Error())
		}
		return fatal(err)
	}
	m.store = st

	if err := m.registry.FireBeforeConfigLoad(ctx, path); err != nil {
		return fatal(err)
	}

	doc, err := configfile.Load(path)
	if err != nil {
		return m.configLoadFailed(err)
	}
	m.doc = doc

	if err := m.registry.FireBeforeConfigValidate(ctx, doc); err != nil {
		return fatal(err)
	}

	if validationErrs := configfile.Validate(doc); len(validationErrs) > 0 {
		for _, verr := range validationErrs {
			m.logger.Error(verr.Error())
		}
		// Nothing is queued this early; the immediate shutdown variant
		// is deliberate.
		if shutdownErr := m.Shutdown(ctx, false); shutdownErr != nil {
			m.logger.Warn("shutdown after validation failure", logging.Error(shutdownErr))
		}
		return fatal(fmt.Errorf("config validation failed with %d error(s)", len(validationErrs)))
	}

	upgraded, err := m.registry.FireUpgrade(ctx, st.DB())
	if err != nil {
		return fatal(err)
	}
	if upgraded {
		m.dbUpgraded = true
		if err := m.registry.FireDBUpgraded(ctx, st.DB()); err != nil {
			return fatal(err)
		}
	}

	if err := m.registry.FireStartup(ctx); err != nil {
		return fatal(err)
	}

	m.logger.Debug("initialization complete",
		logging.String("config", path),
		logging.Int("tasks", len(doc.TaskOrder)))
	return nil
}

// configLoadFailed reports a parse failure tersely, with the full error
// chain only under the debug flag.
func (m *Manager) configLoadFailed(err error) error {
	var parseErr *configfile.ParseError
	if errors.As(err, &parseErr) {
		for _, hint := range parseErr.Hints() {
			m.logger.Error(hint)
		}
	}
	if m.opts.Debug {
		m.logger.Error("config load failed", logging.Error(err))
	} else {
		m.logger.Error(err.Error())
	}
	return fatal(err)
}
