//go:build !windows
// +build !windows

package progress

import "os"

// enableANSIOnWindows is a no-op here; Unix terminals handle ANSI natively.
func enableANSIOnWindows(f *os.File) {}
