package grid

import (
	"testing"
	"time"
)

func TestSlotFromOffset(t *testing.T) {
	g := DefaultGeometry

	tests := []struct {
		name string
		y    int
		want int
	}{
		{"top edge", 0, 0},
		{"inside first slot", g.SlotHeight - 1, 0},
		{"second slot boundary", g.SlotHeight, 1},
		{"mid grid", g.SlotHeight*10 + 5, 10},
		{"above grid clamps to first", -40, 0},
		{"below grid clamps to last", g.SlotHeight * TotalSlots * 2, TotalSlots - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.SlotFromOffset(tt.y); got != tt.want {
				t.Errorf("SlotFromOffset(%d) = %d, want %d", tt.y, got, tt.want)
			}
		})
	}
}

func TestSlotFromOffsetMonotonic(t *testing.T) {
	g := DefaultGeometry
	prev := g.SlotFromOffset(-100)
	for y := -100; y < g.SlotHeight*(TotalSlots+2); y++ {
		cur := g.SlotFromOffset(y)
		if cur < prev {
			t.Fatalf("SlotFromOffset not monotonic at y=%d: %d < %d", y, cur, prev)
		}
		prev = cur
	}
}

func TestDayFromOffset(t *testing.T) {
	g := DefaultGeometry

	tests := []struct {
		name string
		x    int
		want int
	}{
		{"inside gutter clamps to monday", 10, 0},
		{"first column", g.GutterWidth + 1, 0},
		{"second column", g.GutterWidth + g.DayColumnWidth, 1},
		{"last column", g.GutterWidth + g.DayColumnWidth*6 + 10, 6},
		{"past the grid clamps to sunday", g.GutterWidth + g.DayColumnWidth*20, 6},
		{"negative clamps to monday", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.DayFromOffset(tt.x); got != tt.want {
				t.Errorf("DayFromOffset(%d) = %d, want %d", tt.x, got, tt.want)
			}
		})
	}
}

func TestSlotLabel(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "00:00"},
		{1, "00:30"},
		{2, "01:00"},
		{24, "12:00"},
		{47, "23:30"},
		{48, "24:00"},
		{-3, "00:00"},
		{99, "24:00"},
	}

	for _, tt := range tests {
		if got := SlotLabel(tt.index); got != tt.want {
			t.Errorf("SlotLabel(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestSlotTime(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}

	got, err := SlotTime("2025-06-02", 19, loc)
	if err != nil {
		t.Fatalf("SlotTime returned error: %v", err)
	}
	want := time.Date(2025, 6, 2, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("SlotTime = %v, want %v", got, want)
	}

	if _, err := SlotTime("junk", 0, loc); err == nil {
		t.Error("SlotTime accepted malformed day")
	}
}

func TestSlotOfRoundTrips(t *testing.T) {
	for i := 0; i < TotalSlots; i++ {
		ts, err := SlotTime("2025-06-02", i, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if got := SlotOf(ts); got != i {
			t.Errorf("SlotOf(SlotTime(%d)) = %d", i, got)
		}
	}
}

func TestWeekOfAnchorsOnMonday(t *testing.T) {
	// 2025-06-04 is a Wednesday; its week starts Monday 2025-06-02.
	for dayOffset := 0; dayOffset < DaysPerWeek; dayOffset++ {
		t0 := time.Date(2025, 6, 2+dayOffset, 15, 4, 0, 0, time.UTC)
		w := WeekOf(t0)
		if got := w.Day(0); got != "2025-06-02" {
			t.Errorf("WeekOf(%v).Day(0) = %q, want 2025-06-02", t0, got)
		}
	}
}

func TestWeekWindowNavigation(t *testing.T) {
	w := WeekOf(time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC))

	if got := w.Next().Day(0); got != "2025-06-09" {
		t.Errorf("Next().Day(0) = %q, want 2025-06-09", got)
	}
	if got := w.Prev().Day(0); got != "2025-05-26" {
		t.Errorf("Prev().Day(0) = %q, want 2025-05-26", got)
	}
	if got := w.Day(6); got != "2025-06-08" {
		t.Errorf("Day(6) = %q, want 2025-06-08", got)
	}
	// Column index clamps.
	if got := w.Day(99); got != "2025-06-08" {
		t.Errorf("Day(99) = %q, want 2025-06-08", got)
	}

	days := w.Days()
	if len(days) != DaysPerWeek {
		t.Fatalf("Days() returned %d entries", len(days))
	}
	if days[0] != "2025-06-02" || days[6] != "2025-06-08" {
		t.Errorf("Days() = %v", days)
	}
}

func TestWeekWindowContains(t *testing.T) {
	w := WeekOf(time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		day  string
		want bool
	}{
		{"2025-06-02", true},
		{"2025-06-08", true},
		{"2025-06-09", false},
		{"2025-06-01", false},
		{"not-a-date", false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.day); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.day, got, tt.want)
		}
	}
}
