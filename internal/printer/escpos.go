package printer

import (
	"bytes"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// ESC/POS control sequences.
var (
	escInit        = []byte{0x1b, 0x40}
	escAlignLeft   = []byte{0x1b, 0x61, 0x00}
	escAlignCenter = []byte{0x1b, 0x61, 0x01}
	escBoldOn      = []byte{0x1b, 0x45, 0x01}
	escBoldOff     = []byte{0x1b, 0x45, 0x00}
	escFeed4       = []byte{0x1b, 0x64, 0x04}
	gsCutPartial   = []byte{0x1d, 0x56, 0x42, 0x00}

	// DLE EOT 1: real-time printer status
	dleStatus = []byte{0x10, 0x04, 0x01}
)

// statusOffline is bit 3 of the DLE EOT 1 response.
const statusOffline = 0x08

// RenderESCPOS renders the receipt as an ESC/POS command stream ending in a
// partial cut.
func RenderESCPOS(p domain.DocumentPayload, width int) ([]byte, error) {
	lines, err := layout(p, width)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(escInit)

	current := alignLeft
	bold := false
	for _, l := range lines {
		if l.align != current {
			if l.align == alignCenter {
				buf.Write(escAlignCenter)
			} else {
				buf.Write(escAlignLeft)
			}
			current = l.align
		}
		if l.bold != bold {
			if l.bold {
				buf.Write(escBoldOn)
			} else {
				buf.Write(escBoldOff)
			}
			bold = l.bold
		}
		buf.WriteString(l.text)
		buf.WriteByte('\n')
	}
	if bold {
		buf.Write(escBoldOff)
	}

	buf.Write(escFeed4)
	buf.Write(gsCutPartial)
	return buf.Bytes(), nil
}
