//go:build tinygo && stm32f4

package main

import (
	"bytes"
	"unsafe"

	"gofoc/persist"
)

// The persisted block map lives in flash sector 7, memory mapped at the
// top of the F446's 512K. Saving is done host-side over the command bus;
// the firmware only reads.
const (
	configFlashBase = 0x08060000
	configFlashSize = 128 * 1024
)

// loadFlashConfig decodes the persisted blocks straight from the mapped
// sector. An erased or corrupt sector leaves the compiled-in defaults in
// place.
func loadFlashConfig(store *persist.Registry) {
	sector := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(configFlashBase))),
		configFlashSize)

	// Erased NOR flash reads 0xFF, which is not a CBOR map header.
	if sector[0] == 0xFF {
		return
	}

	// A corrupt store is ignored; the servo runs on defaults until the
	// host rewrites the sector.
	_ = store.Load(bytes.NewReader(sector))
}
