// This file implements the Epson ESC/POS style command byte sequences that are
// written to Phomemo D30 label printers.
package printer

import "encoding/binary"

// Control characters
const (
	Esc = 0x1B
	GS  = 0x1D
	US  = 0x1F
)

// Wakes the device and resets its print state.
func wakeDevice() []byte {
	return []byte{US, 0x11, 0x24, 0x00}
}

// Initialises the printer & prepares it to accept commands
func initPrinter() []byte {
	return []byte{Esc, 0x40}
}

// Prepares the printer to print bitmap data specified by the width and height passed in.
// widthBytes specifies the width of the bitmap data in bytes, with 8 pixels packed into 1 byte.
// heightBits specifies the height of the bitmap data in rows.
// After this command is written, (widthBytes * heightBits) bytes of data must then be written
func printBitmapHeader(widthBytes uint16, heightBits uint16) []byte {
	d := []byte{GS, 0x76, 0x30, 0x00}
	d = binary.LittleEndian.AppendUint16(d, widthBytes)
	return binary.LittleEndian.AppendUint16(d, heightBits)
}

// Prints whatever is buffered and feeds n lines. The D30 finds the next label
// gap itself, so no extra feed is needed.
func feedLines(n byte) []byte {
	return []byte{Esc, 0x64, n}
}

// Length of the header preceding the bitmap data in a frame.
const headerLength = 14

// Offset of the width/height fields within the header.
const dimensionsOffset = 10

// Packets the vendor app writes after connecting, before any print data.
func handshakePackets() [][]byte {
	return [][]byte{
		{US, 0x11, 0x38},
		{US, 0x11, 0x12, US, 0x11, 0x13},
		{US, 0x11, 0x09},
		{US, 0x11, 0x11},
		{US, 0x11, 0x19},
		{US, 0x11, 0x07},
		{US, 0x11, 0x0A, US, 0x11, 0x02, 0x02},
	}
}

// Queries the battery status of the printer.
func queryBatteryStatus() []byte {
	return []byte{US, 0x11, 0x08}
}

// Queries the status of the paper loaded & whether the top lid is open or not.
func queryPaperStatus() []byte {
	return []byte{US, 0x11, 0x11}
}

// Queries the version of the firmware running on the device.
func queryFirmwareVersion() []byte {
	return []byte{US, 0x11, 0x07}
}
