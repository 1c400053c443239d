package billing

import (
	"testing"
	"time"
)

func TestWeekAnchor(t *testing.T) {
	// 2024-01-06 was a Saturday.
	anchor := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "saturday midnight maps to itself",
			now:  anchor,
			want: anchor,
		},
		{
			name: "saturday afternoon truncates to midnight",
			now:  time.Date(2024, time.January, 6, 14, 30, 0, 0, time.UTC),
			want: anchor,
		},
		{
			name: "sunday goes back one day",
			now:  time.Date(2024, time.January, 7, 9, 0, 0, 0, time.UTC),
			want: anchor,
		},
		{
			name: "friday goes back to previous saturday",
			now:  time.Date(2024, time.January, 5, 23, 59, 0, 0, time.UTC),
			want: time.Date(2023, time.December, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "end of window still maps to its anchor",
			now:  time.Date(2024, time.January, 12, 23, 59, 59, 0, time.UTC),
			want: anchor,
		},
		{
			name: "next saturday starts a new window",
			now:  time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, time.January, 13, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WeekAnchor(tt.now); !got.Equal(tt.want) {
				t.Errorf("WeekAnchor(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestWeekAnchorStableAcrossWindow(t *testing.T) {
	anchor := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	for hours := 0; hours < 7*24; hours++ {
		now := anchor.Add(time.Duration(hours) * time.Hour)
		if got := WeekAnchor(now); !got.Equal(anchor) {
			t.Fatalf("WeekAnchor(%v) = %v, want %v", now, got, anchor)
		}
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{in: "Monday", want: time.Monday},
		{in: "saturday", want: time.Saturday},
		{in: "SUNDAY", want: time.Sunday},
		{in: "Mon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDay(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDay(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDaysRejectsDuplicates(t *testing.T) {
	if _, err := ParseDays([]string{"Monday", "monday"}); err == nil {
		t.Error("expected duplicate weekday to be rejected")
	}
}
