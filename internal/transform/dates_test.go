package transform

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestParseMixedDate(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want *time.Time
	}{
		{name: "nil", in: nil, want: nil},
		{name: "NaN", in: math.NaN(), want: nil},
		{name: "empty string", in: "   ", want: nil},
		{name: "timestamp keeps calendar date", in: time.Date(2023, 4, 1, 17, 45, 0, 0, time.UTC), want: ptrTime(day(2023, 4, 1))},
		{name: "serial float", in: 45000.0, want: ptrTime(day(2023, 3, 15))},
		{name: "serial fraction truncated", in: 45000.75, want: ptrTime(day(2023, 3, 15))},
		{name: "serial int", in: int64(44927), want: ptrTime(day(2023, 1, 1))},
		{name: "serial string", in: " 45000 ", want: ptrTime(day(2023, 3, 15))},
		{name: "serial one", in: 1.0, want: ptrTime(day(1899, 12, 31))},
		{name: "serial zero is epoch", in: 0.0, want: ptrTime(day(1899, 12, 30))},
		{name: "iso", in: "2024-02-29", want: ptrTime(day(2024, 2, 29))},
		{name: "iso unpadded", in: "2024-2-9", want: ptrTime(day(2024, 2, 9))},
		{name: "iso padded with spaces", in: "  2023-07-04 ", want: ptrTime(day(2023, 7, 4))},
		{name: "slash ymd", in: "2023/07/04", want: ptrTime(day(2023, 7, 4))},
		{name: "us slash", in: "07/04/2023", want: ptrTime(day(2023, 7, 4))},
		{name: "us slash unpadded", in: "7/4/2023", want: ptrTime(day(2023, 7, 4))},
		{name: "invalid day", in: "2023-02-30", want: nil},
		{name: "day-first not supported", in: "31/12/2023", want: nil},
		{name: "garbage", in: "next tuesday", want: nil},
		{name: "infinite", in: math.Inf(1), want: nil},
		{name: "serial beyond year 9999", in: 1e12, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMixedDate(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %s", got.Format(DateLayout))
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tt.want.Format(DateLayout))
			}
			if !tt.want.Equal(*got) {
				t.Errorf("expected %s, got %s", tt.want.Format(DateLayout), got.Format(DateLayout))
			}
		})
	}
}

func TestParseMixedDate_SerialUsesLegacyEpoch(t *testing.T) {
	got := ParseMixedDate(45000)
	if got == nil {
		t.Fatal("expected a date for serial 45000")
	}
	// The 1904 epoch would give 2027-03-16.
	if s := got.Format(DateLayout); s != "2023-03-15" {
		t.Errorf("expected 2023-03-15, got %s", s)
	}
}

func TestSerialRoundTrip(t *testing.T) {
	for _, n := range []int64{-600000, -1, 0, 1, 60, 61, 36526, 45000, 45291, 2958465} {
		d := ParseMixedDate(float64(n))
		if d == nil {
			t.Errorf("serial %d: expected a date, got nil", n)
			continue
		}
		if got := SerialFromDate(*d); got != n {
			t.Errorf("serial %d: round trip gave %d", n, got)
		}
	}
}

func TestParseMixedDate_Idempotent(t *testing.T) {
	for _, in := range []any{45000.0, "2023-07-04", "07/04/2023", time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC)} {
		first := ParseMixedDate(in)
		if first == nil {
			t.Fatalf("%v: expected a date", in)
		}
		second := ParseMixedDate(*first)
		if second == nil || !first.Equal(*second) {
			t.Errorf("%v: expected %s on second parse, got %v", in, first.Format(DateLayout), second)
		}
	}
}
