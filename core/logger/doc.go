// Package logger provides slog attribute helpers shared across the module's
// components. Helpers return empty attributes for zero inputs, so call sites
// need no nil checks.
package logger
