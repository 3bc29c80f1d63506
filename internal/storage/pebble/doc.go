// Package pebblestore wraps Pebble for the mission library: the on-disk
// archive of recovered flight logs. It narrows the Pebble surface to the
// operations the archive needs (gets, batched writes, prefix iteration,
// range deletes) and adds an fsync policy plus optional latency hooks.
//
// Imported missions are write-once, so FsyncModeAlways is the normal
// choice; tests use FsyncModeNever.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: cfg.MissionsDir,
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
package pebblestore
