//go:build !linux

package stress

const (
	oDirect           = 0
	directIOSupported = false
)
