// Package testutil provides deterministic clocks and ID generators shared by
// tests across the module.
package testutil
