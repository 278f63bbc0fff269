package media

import (
	"testing"
	"time"
)

func TestFrameRateInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rate FrameRate
		want time.Duration
	}{
		{FrameRate{Num: 30, Den: 1}, time.Second / 30},
		{FrameRate{Num: 25, Den: 1}, 40 * time.Millisecond},
		{FrameRate{Num: 60, Den: 1}, time.Second / 60},
		{FrameRate{}, 0},
	}
	for _, c := range cases {
		if got := c.rate.Interval(); got != c.want {
			t.Errorf("%v.Interval(): got %v, want %v", c.rate, got, c.want)
		}
	}
}

func TestFrameRateNTSC(t *testing.T) {
	t.Parallel()

	rate := FrameRate{Num: 30000, Den: 1001}
	if got := rate.Float(); got < 29.96 || got > 29.98 {
		t.Errorf("Float(): got %v, want ~29.97", got)
	}
	second := float64(time.Second)
	want := time.Duration(second * 1001 / 30000)
	if got := rate.Interval(); got != want {
		t.Errorf("Interval(): got %v, want %v", got, want)
	}
	if got := rate.String(); got != "30000/1001 fps" {
		t.Errorf("String(): got %q", got)
	}
}

func TestTimecodeDuration(t *testing.T) {
	t.Parallel()

	rate := FrameRate{Num: 30, Den: 1}
	tc := Timecode{Hours: 1, Minutes: 2, Seconds: 3, Frames: 15}
	want := time.Hour + 2*time.Minute + 3*time.Second + 15*rate.Interval()
	if got := tc.Duration(rate); got != want {
		t.Errorf("Duration: got %v, want %v", got, want)
	}
}

func TestTimecodeNextDoesNotCarry(t *testing.T) {
	t.Parallel()

	tc := Timecode{Seconds: 59, Frames: 29}
	next := tc.Next()
	if next.Frames != 30 || next.Seconds != 59 {
		t.Errorf("Next: got %+v, want frames 30, seconds 59", next)
	}
}

func TestTimecodeString(t *testing.T) {
	t.Parallel()

	tc := Timecode{Hours: 9, Minutes: 8, Seconds: 7, Frames: 6}
	if got := tc.String(); got != "09:08:07:06" {
		t.Errorf("String: got %q, want 09:08:07:06", got)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()

	cases := map[State]string{
		StateClosed:    "closed",
		StatePreparing: "preparing",
		StatePlaying:   "playing",
		StateStopped:   "stopped",
		StateError:     "error",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String(): got %q, want %q", s, got, want)
		}
	}
}
