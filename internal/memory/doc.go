// Package memory keeps image decoding inside a container's memory limit.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from the container limit passed in
// MEMORY_LIMIT (bytes), scaled by MEMORY_RATIO (default 0.75). An explicit
// GOMEMLIMIT always takes precedence. The lower default ratio leaves room
// for libvips, whose pixel buffers live outside the Go heap.
//
// A [Monitor] samples heap usage against that limit. Once usage reaches the
// critical water mark it pauses new image work until usage falls below the
// high water mark; the transcoder waits on it before every job:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//	trans = transcoder.Throttle(trans, monitor)
//
// Pass the limit to the container with the Downward API:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
package memory
