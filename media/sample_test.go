package media

import (
	"bytes"
	"testing"
	"time"
)

// frameBuf builds a test picture where every byte of line n is n, so field
// extraction is easy to verify.
func frameBuf(pitch, height int) []byte {
	buf := make([]byte, pitch*height)
	for line := 0; line < height; line++ {
		for x := 0; x < pitch; x++ {
			buf[line*pitch+x] = byte(line)
		}
	}
	return buf
}

func TestVideoSampleInitFullCopies(t *testing.T) {
	t.Parallel()

	const (
		pitch  = 8
		width  = 4
		height = 4
	)
	buf := frameBuf(pitch, height)

	var s VideoSample
	if !s.InitFull(buf, pitch, width, height, FormatUYVY, time.Second, FrameRate{Num: 30, Den: 1}, nil, false) {
		t.Fatal("InitFull returned false")
	}
	if !bytes.Equal(s.Data, buf) {
		t.Fatal("sample data differs from source")
	}

	// The sample owns its copy: mutating the source must not leak through.
	buf[0] = 0xFF
	if s.Data[0] == 0xFF {
		t.Fatal("sample aliases the driver buffer")
	}
}

func TestVideoSampleInitFullRejectsBadGeometry(t *testing.T) {
	t.Parallel()

	var s VideoSample
	if s.InitFull(nil, 8, 4, 4, FormatUYVY, 0, FrameRate{}, nil, false) {
		t.Error("expected empty buffer to be rejected")
	}
	if s.InitFull(make([]byte, 32), 0, 4, 4, FormatUYVY, 0, FrameRate{}, nil, false) {
		t.Error("expected zero pitch to be rejected")
	}
}

func TestVideoSampleInitFieldSplitsLines(t *testing.T) {
	t.Parallel()

	const (
		pitch  = 4
		width  = 2
		height = 6
	)
	buf := frameBuf(pitch, height)

	var even, odd VideoSample
	if !even.InitField(true, buf, pitch, width, height, FormatUYVY, 0, FrameRate{Num: 30, Den: 1}, nil, false) {
		t.Fatal("even InitField returned false")
	}
	if !odd.InitField(false, buf, pitch, width, height, FormatUYVY, 0, FrameRate{Num: 30, Den: 1}, nil, false) {
		t.Fatal("odd InitField returned false")
	}

	if even.Height != 3 || odd.Height != 3 {
		t.Fatalf("field heights: got %d and %d, want 3", even.Height, odd.Height)
	}
	if even.Field != FieldEven || odd.Field != FieldOdd {
		t.Fatalf("field tags: got %v and %v", even.Field, odd.Field)
	}

	for line := 0; line < 3; line++ {
		if got := even.Data[line*pitch]; got != byte(2*line) {
			t.Errorf("even line %d: got source line %d, want %d", line, got, 2*line)
		}
		if got := odd.Data[line*pitch]; got != byte(2*line+1) {
			t.Errorf("odd line %d: got source line %d, want %d", line, got, 2*line+1)
		}
	}
}

func TestVideoSampleTimecodeIsCopied(t *testing.T) {
	t.Parallel()

	tc := &Timecode{Frames: 5}
	var s VideoSample
	if !s.InitFull(make([]byte, 16), 4, 2, 4, FormatUYVY, 0, FrameRate{Num: 30, Den: 1}, tc, false) {
		t.Fatal("InitFull returned false")
	}
	tc.Frames = 99
	if s.Timecode.Frames != 5 {
		t.Fatalf("sample timecode aliases caller value: got %d", s.Timecode.Frames)
	}
}

func TestAudioSampleInit(t *testing.T) {
	t.Parallel()

	buf := []int32{1, -2, 3, -4, 5, -6}
	var s AudioSample
	if !s.Init(buf, 2, 48000, time.Millisecond, nil) {
		t.Fatal("Init returned false")
	}
	if len(s.Data) != len(buf) || s.Data[1] != -2 {
		t.Fatalf("data: got %v", s.Data)
	}

	buf[0] = 42
	if s.Data[0] == 42 {
		t.Fatal("sample aliases the driver buffer")
	}

	if s.Init(nil, 2, 48000, 0, nil) {
		t.Error("expected empty buffer to be rejected")
	}
	if s.Init(buf, 0, 48000, 0, nil) {
		t.Error("expected zero channels to be rejected")
	}
	if s.Init(buf, 2, 0, 0, nil) {
		t.Error("expected zero rate to be rejected")
	}
}
