/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors, plus the small set of file helpers the cache and
catalog share.

# Purpose

The photo store and the derived-image cache live under one data directory that may be
a network mount. This package wraps os.Stat, os.Open, os.Rename and os.Remove with retry
logic for ESTALE (stale file handle) errors and records per-volume metrics through an
Observer supplied by the metrics package.

# Key Features

  - Automatic retry with exponential backoff for NFS ESTALE errors
  - Configurable retry attempts (default: 3) and backoff timings
  - Transparent fallback to standard os operations for non-NFS errors
  - WriteFileAtomic: temp-file-then-rename writes for JSON snapshots
  - PathFromURI: file:// URIs and plain paths are accepted interchangeably

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	if err := filesystem.WriteFileAtomic(indexPath, data, 0o644); err != nil {
	    return err
	}

# Retry Behavior

Only ESTALE triggers retries. All other errors fail immediately. Defaults are
3 retries with 50ms initial backoff doubling up to 500ms.
*/
package filesystem
