package stress

import "unsafe"

func addrOf(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
