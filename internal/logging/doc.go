// Package logging provides a simple leveled logging interface for the
// photo gallery service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Components obtain a prefixed Logger with
// For so that their lines are attributable:
//
//	log := logging.For("imagecache")
//	log.Warn("failed to delete %s: %v", path, err)
package logging
