// Package configfile reads and writes the flume task document.
//
// The document is YAML: a `tasks` mapping (each entry an opaque task
// configuration with an optional `priority`), an optional `schedules`
// list for daemon-mode background execution, and free-form
// `variables`. Task declaration order is preserved from the source so
// priority ties execute in the order the operator wrote them.
//
// The package owns the search-path resolution for the document, parse
// diagnostics, structural validation, and per-task fingerprints used
// to detect configuration changes between runs.
package configfile
