// Command cachectl inspects and maintains the gallery's derived-image
// cache from the command line, against the same data directory the server
// uses.
//
// Usage:
//
//	cachectl [--json] <command> [args]
//
// Commands:
//
//	stats           Entry count, on-disk size of the derived files and the
//	                summed pixel count.
//
//	inspect         Every indexed entry with the state of its two files,
//	                plus files in the cache directories no entry references.
//
//	warm [uri...]   Derive and index the given images. Without arguments
//	                every photo in the catalog is warmed. Derivations run
//	                concurrently, bounded by CACHE_WORKERS or the CPU count.
//
//	clear           Delete all derived files and the index.
//
//	prune           Delete orphaned derived files.
//
// Output is human readable on a terminal and JSON otherwise; --json forces
// JSON. The server should not be writing to the directory while clear or
// prune runs.
//
// Environment:
//
//	DATA_DIR        Path to the data directory (default: ./data)
//	CACHE_KEY_MODE  segment or hash, must match the server
//	TRANSCODER      auto, vips or imaging (used by warm)
package main
