package player

import (
	"testing"

	"github.com/zsiec/decklink/driver"
)

func TestCaptionDecoderPaddingProducesNothing(t *testing.T) {
	t.Parallel()

	d := newCaptionDecoder()
	cc := []driver.CCData{
		{Type: 0, Data: [2]byte{0x80, 0x80}},
		{Type: 1, Data: [2]byte{0x80, 0x80}},
	}
	for i := 0; i < 10; i++ {
		if frames := d.decode(cc, int64(i)); len(frames) != 0 {
			t.Fatalf("padding delivery %d produced %d frames", i, len(frames))
		}
	}
}

func TestCaptionDecoderDedupesRepeatedControlPairs(t *testing.T) {
	t.Parallel()

	d := newCaptionDecoder()
	ctrl := []driver.CCData{{Type: 0, Data: [2]byte{0x14, 0x20}}}

	d.decode(ctrl, 0)
	if !d.lastWasCtrl[0] {
		t.Fatal("first control pair not remembered")
	}

	// The immediate retransmission is swallowed.
	d.decode(ctrl, 1)
	if d.lastWasCtrl[0] {
		t.Fatal("duplicate control pair was not consumed")
	}

	// Once the duplicate is consumed the same pair is treated as new.
	d.decode(ctrl, 2)
	if !d.lastWasCtrl[0] {
		t.Fatal("control pair after the dedup window not remembered")
	}
}

func TestCaptionDecoderDedupeIsPerField(t *testing.T) {
	t.Parallel()

	d := newCaptionDecoder()
	d.decode([]driver.CCData{{Type: 0, Data: [2]byte{0x14, 0x20}}}, 0)
	d.decode([]driver.CCData{{Type: 1, Data: [2]byte{0x14, 0x20}}}, 1)

	if !d.lastWasCtrl[0] || !d.lastWasCtrl[1] {
		t.Fatal("control pairs on different fields must not dedupe each other")
	}
}

func TestCaptionDecoderAssemblesDTVCCAcrossDeliveries(t *testing.T) {
	t.Parallel()

	d := newCaptionDecoder()

	d.decode([]driver.CCData{{Type: 3, Data: [2]byte{0x12, 0x34}}}, 0)
	if got := len(d.dtvccBuf); got != 2 {
		t.Fatalf("buffer after packet start: got %d bytes, want 2", got)
	}

	d.decode([]driver.CCData{{Type: 2, Data: [2]byte{0x56, 0x78}}}, 1)
	if got := len(d.dtvccBuf); got != 4 {
		t.Fatalf("buffer after continuation: got %d bytes, want 4", got)
	}

	// The next packet start drains the pending packet and restarts the
	// buffer with its own bytes.
	d.decode([]driver.CCData{{Type: 3, Data: [2]byte{0x9A, 0xBC}}}, 2)
	if got := len(d.dtvccBuf); got != 2 {
		t.Fatalf("buffer after second start: got %d bytes, want 2", got)
	}
}

func TestCaptionDecoderEmptyInput(t *testing.T) {
	t.Parallel()

	d := newCaptionDecoder()
	if frames := d.decode(nil, 0); frames != nil {
		t.Fatalf("nil input produced %d frames", len(frames))
	}
}
