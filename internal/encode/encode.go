// Package encode burns a human-readable timecode into the pixels of a raw
// captured frame, so a monitor downstream can verify which frame it is
// looking at. The mutation is irreversible and must happen before the
// frame is copied into a sample.
package encode

// Pixel layouts the burner understands.
type PixelFormat int

const (
	FormatUYVY PixelFormat = iota // 8-bit 4:2:2
	FormatV210                    // 10-bit 4:2:2
)

// Glyph cell geometry. Each character is a 3x5 bitmap scaled up so the
// burned timecode is readable on a full-resolution monitor.
const (
	glyphCols = 3
	glyphRows = 5
	scale     = 4
	cellW     = (glyphCols + 1) * scale
	cellH     = (glyphRows + 1) * scale
)

// 3x5 bitmaps for '0'-'9' and ':'. One uint16 per glyph, row-major,
// most significant bit first.
var glyphs = map[byte]uint16{
	'0': 0b111_101_101_101_111,
	'1': 0b010_110_010_010_111,
	'2': 0b111_001_111_100_111,
	'3': 0b111_001_111_001_111,
	'4': 0b101_101_111_001_001,
	'5': 0b111_100_111_001_111,
	'6': 0b111_100_111_101_111,
	'7': 0b111_001_010_010_010,
	'8': 0b111_101_111_101_111,
	'9': 0b111_101_111_001_111,
	':': 0b000_010_000_010_000,
}

// Luma levels for the burned glyphs (video range).
const (
	lumaWhite8  = 0xEB
	lumaBlack8  = 0x10
	lumaWhite10 = 0x3AC
	lumaBlack10 = 0x040
)

// BurnTimecode renders hours:minutes:seconds:frames into the top-left
// corner of the frame. Out-of-bounds pixels are skipped, so small frames
// are safe.
func BurnTimecode(format PixelFormat, buf []byte, pitch, width, height int, hours, minutes, seconds, frames int) {
	text := []byte{
		digit(hours / 10), digit(hours % 10), ':',
		digit(minutes / 10), digit(minutes % 10), ':',
		digit(seconds / 10), digit(seconds % 10), ':',
		digit(frames / 10), digit(frames % 10),
	}

	for i, ch := range text {
		drawGlyph(format, buf, pitch, width, height, i*cellW, 0, ch)
	}
}

func digit(n int) byte {
	if n < 0 || n > 9 {
		return '0'
	}
	return '0' + byte(n)
}

// drawGlyph paints one character cell at pixel (x0, y0): background black,
// set bits white.
func drawGlyph(format PixelFormat, buf []byte, pitch, width, height, x0, y0 int, ch byte) {
	bits, ok := glyphs[ch]
	if !ok {
		return
	}
	for dy := 0; dy < cellH; dy++ {
		y := y0 + dy
		if y >= height {
			return
		}
		row := buf[min(y*pitch, len(buf)):]
		if len(row) > pitch {
			row = row[:pitch]
		}
		gy := dy / scale
		for dx := 0; dx < cellW; dx++ {
			x := x0 + dx
			if x >= width {
				break
			}
			gx := dx / scale
			on := false
			if gx < glyphCols && gy < glyphRows {
				bit := uint(glyphRows*glyphCols - 1 - (gy*glyphCols + gx))
				on = bits>>bit&1 == 1
			}
			setLuma(format, row, x, on)
		}
	}
}

// setLuma writes a single pixel's luma component, leaving chroma alone.
func setLuma(format PixelFormat, row []byte, x int, white bool) {
	switch format {
	case FormatUYVY:
		// Byte pairs U0 Y0 V0 Y1: luma of pixel x lives at 2x+1.
		off := 2*x + 1
		if off >= len(row) {
			return
		}
		if white {
			row[off] = lumaWhite8
		} else {
			row[off] = lumaBlack8
		}
	case FormatV210:
		setLumaV210(row, x, white)
	}
}

// v210 packs 6 pixels into four 32-bit little-endian words, three 10-bit
// components per word:
//
//	word 0: Cb0 Y0 Cr0    word 1: Y1 Cb2 Y2
//	word 2: Cr2 Y3 Cb4    word 3: Y4 Cr4 Y5
//
// lumaSlot maps pixel-within-group to (word, component slot).
var lumaSlot = [6][2]int{{0, 1}, {1, 0}, {1, 2}, {2, 1}, {3, 0}, {3, 2}}

func setLumaV210(row []byte, x int, white bool) {
	group := x / 6
	slot := lumaSlot[x%6]
	off := group*16 + slot[0]*4
	if off+4 > len(row) {
		return
	}
	word := uint32(row[off]) | uint32(row[off+1])<<8 | uint32(row[off+2])<<16 | uint32(row[off+3])<<24

	shift := uint(slot[1] * 10)
	val := uint32(lumaBlack10)
	if white {
		val = lumaWhite10
	}
	word = word&^(0x3FF<<shift) | val<<shift

	row[off] = byte(word)
	row[off+1] = byte(word >> 8)
	row[off+2] = byte(word >> 16)
	row[off+3] = byte(word >> 24)
}
