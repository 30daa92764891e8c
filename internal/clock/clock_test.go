package clock

import (
	"testing"
	"time"
)

func TestFake_Advance(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFake(start)

	if got := f.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	f.Advance(10 * time.Minute)
	if got := f.Now(); !got.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(10*time.Minute))
	}
}

func TestFake_SetNormalisesToUTC(t *testing.T) {
	f := NewFake(time.Time{})
	loc := time.FixedZone("UTC+3", 3*60*60)
	target := time.Date(2026, 5, 1, 12, 0, 0, 0, loc)
	f.Set(target)

	got := f.Now()
	if got.Location() != time.UTC {
		t.Errorf("Now().Location() = %v, want UTC", got.Location())
	}
	if !got.Equal(target) {
		t.Errorf("Now() = %v, want instant %v", got, target)
	}
}

func TestReal_IsUTC(t *testing.T) {
	if loc := Real().Now().Location(); loc != time.UTC {
		t.Errorf("Real().Now().Location() = %v, want UTC", loc)
	}
}
