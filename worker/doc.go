// Package worker runs the catalog synchronization loop: call the updater,
// wait for the configured period or cron time, repeat until stopped.
package worker
