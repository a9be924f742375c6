package cfr

import "github.com/rjboer/limetrx/internal/regfield"

// Register map of one CFR block. Each chip carries two blocks, one per
// channel, blockStride apart.
const (
	RegControl   uint16 = 0x0040
	RegThreshold uint16 = 0x0041
	RegGain      uint16 = 0x0042
	RegMemAddr   uint16 = 0x0043
	RegMemData   uint16 = 0x0044

	blockStride     = 0x10
	channelsPerChip = 2
)

// Control register fields.
var Control = regfield.MustLayout(
	regfield.Field{Name: "order", Offset: 0, Width: 8},
	regfield.Field{Name: "bypass", Offset: 8, Width: 1},
	regfield.Field{Name: "bypass_gain", Offset: 9, Width: 1},
)

// MemAddr selects a coefficient memory word. Writes to RegMemData then fill
// the word's sub-registers in order.
var MemAddr = regfield.MustLayout(
	regfield.Field{Name: "word", Offset: 0, Width: 6},
	regfield.Field{Name: "bank", Offset: 8, Width: 1},
)

// Coefficient memory geometry.
const (
	Banks          = 2
	WordsPerBank   = 40
	SubRegsPerWord = 4

	// bank holding the second half of the window
	halfBank = 0
	fullBank = 1
)

// SubDevice returns the chip index a channel's CFR block lives on.
func SubDevice(ch int) int { return ch / channelsPerChip }

// BlockAddr returns the address of reg within the block serving ch.
func BlockAddr(ch int, reg uint16) uint16 {
	return reg + uint16(ch%channelsPerChip)*blockStride
}
