// Package config loads a terminal's YAML configuration.
//
// A file is decoded strictly (unknown keys are errors), checked against the
// embedded CUE schema, and then filled with defaults. Nothing is read from
// the environment.
//
// Example:
//
//	terminal: kitchen-1
//	timezone: Europe/Berlin
//	cache_path: bowltrack.db
//	remote:
//	  driver: postgres
//	  dsn: postgres://bowls@db/bowls
//	  document: main
//	sync:
//	  debounce: 500ms
//	  push_retries: 2
//	report:
//	  overdue_rule: days > 7
package config
