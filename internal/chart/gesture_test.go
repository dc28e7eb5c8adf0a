package chart

import "testing"

func TestProjectIndex(t *testing.T) {
	cases := []struct {
		offset, width float64
		rows          int
		want          int
		ok            bool
	}{
		{0, 700, 8, 0, true},
		{700, 700, 8, 7, true},
		{350, 700, 8, 4, true}, // 3.5 rounds away from zero
		{149, 700, 8, 1, true},
		{-40, 700, 8, 0, true},
		{900, 700, 8, 7, true},
		{10, 700, 1, 0, true},
		{10, 0, 8, 0, false},
		{10, 700, 0, 0, false},
	}
	for _, tc := range cases {
		got, ok := ProjectIndex(tc.offset, tc.width, tc.rows)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ProjectIndex(%v, %v, %d) = %d, %v; want %d, %v",
				tc.offset, tc.width, tc.rows, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTouchMatchesPointer(t *testing.T) {
	touch := loaded()
	touch.Feed(PointerInput{Kind: GestureStart, OffsetX: 600, AxisWidth: 700})
	touch.Feed(PointerInput{Kind: GestureMove, OffsetX: 100, AxisWidth: 700})
	touch.Feed(PointerInput{Kind: GestureEnd})

	pointer := loaded()
	pointer.Handle(Gesture{Kind: GestureStart, Date: "2024-03-10"})
	pointer.Handle(Gesture{Kind: GestureMove, Date: "2024-01-05"})
	pointer.Handle(Gesture{Kind: GestureEnd})

	if touch.State().Window != pointer.State().Window {
		t.Errorf("touch window %+v != pointer window %+v", touch.State().Window, pointer.State().Window)
	}
}

func TestFeedOutOfBoundsClamps(t *testing.T) {
	m := loaded()
	m.Feed(PointerInput{Kind: GestureStart, OffsetX: -500, AxisWidth: 700})
	if s := m.State(); s.PendingLeft != "2024-01-02" {
		t.Errorf("pendingLeft = %q, want first row", s.PendingLeft)
	}
	m.Feed(PointerInput{Kind: GestureMove, OffsetX: 5000, AxisWidth: 700})
	if s := m.State(); s.PendingRight != "2024-03-28" {
		t.Errorf("pendingRight = %q, want last row", s.PendingRight)
	}
}

func TestFeedResolvesAgainstZoomedView(t *testing.T) {
	m := loaded()
	m.Handle(Gesture{Kind: GestureStart, Date: "2024-02-01"})
	m.Handle(Gesture{Kind: GestureMove, Date: "2024-03-10"})
	m.Handle(Gesture{Kind: GestureEnd})

	p, ok := m.Resolve(0, 700)
	if !ok || p.Date != "2024-02-01" {
		t.Errorf("Resolve(0) on zoomed view = %+v, %v", p, ok)
	}
}
