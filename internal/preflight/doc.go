// Package preflight provides readiness checks for the directories and
// external services tunes depends on. The CLI "tunes doctor" command runs
// them and prints one row per check. Disabled features are skipped.
package preflight
