//go:build !linux

package stress

import "fmt"

func pinToCore(coreID int) error {
	return fmt.Errorf("core pinning not supported on this platform")
}

func unpinThread() {}
