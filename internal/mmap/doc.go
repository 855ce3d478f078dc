// Package mmap provides memory mappings for off-heap segment storage and
// zero-copy snapshot reads.
//
// # Anonymous Mappings
//
// MapAnon creates a zero-filled read-write mapping outside the Go heap. The
// pool uses it for off-heap segments: the garbage collector never scans the
// records, and the memory is returned to the OS on Close.
//
//	m, err := mmap.MapAnon(64 * 1024)
//	if err != nil { ... }
//	defer m.Close()
//	buf := m.Bytes()
//
// # File Mappings
//
// Open maps a file read-only. LocalStore uses it to read snapshot blobs.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) and madvise(2) via golang.org/x/sys/unix
//   - Other platforms: heap-backed fallback with the same API
package mmap
