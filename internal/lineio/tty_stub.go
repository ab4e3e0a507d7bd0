//go:build !linux

package lineio

import "os"

func IsTerminal(f *os.File) bool {
	return false
}
