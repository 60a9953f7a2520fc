// Package watch re-runs a callback when a watched file changes.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file on save (rename over the original) keep
// triggering. Bursts of write events are collapsed by a debounce timer
// and callbacks run one at a time on the watcher goroutine.
package watch
