/*
Package workers sizes worker pools from GOMAXPROCS, which follows container
CPU limits, instead of runtime.NumCPU, which reports the host.

	n := workers.ForMixed(8) // at most 8 cache warmers

Set CACHE_WORKERS to pin the count; the limit passed by the caller still
applies.
*/
package workers
