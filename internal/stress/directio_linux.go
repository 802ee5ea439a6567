//go:build linux

package stress

import "golang.org/x/sys/unix"

const (
	oDirect           = unix.O_DIRECT
	directIOSupported = true
)
