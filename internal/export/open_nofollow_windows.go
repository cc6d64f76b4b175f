//go:build windows

package export

import "os"

// openNoFollow may follow reparse points on Windows. Scratch files are
// created by the extractor, so the size check in addFile still applies.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}
