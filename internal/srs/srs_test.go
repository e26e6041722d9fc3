package srs

import (
	"errors"
	"math"
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewState(t *testing.T) {
	today := time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)
	s := NewState(today)

	if s.Interval != 1 || s.EaseFactor != 2.5 || s.Repetitions != 0 {
		t.Errorf("Expected {1, 2.5, 0}, but got {%d, %.2f, %d}", s.Interval, s.EaseFactor, s.Repetitions)
	}
	if !s.NextReviewDate.Equal(day("2024-03-10")) {
		t.Errorf("Expected new card to be due today, but got %v", s.NextReviewDate)
	}
	if !s.Due(today) {
		t.Error("Expected a new card to be due on its creation day")
	}
	if s.Mode() != Learning {
		t.Errorf("Expected a new card to be learning, but got %s", s.Mode())
	}
}

func TestScheduleBoundaryScenarios(t *testing.T) {
	start := State{Interval: 1, EaseFactor: 2.5, Repetitions: 0, NextReviewDate: day("2024-01-01")}

	first, err := Schedule(start, Good, day("2024-01-01"))
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	if first.Interval != 1 || first.Repetitions != 1 || !almostEqual(first.EaseFactor, 2.36) {
		t.Errorf("Expected {1, 2.36, 1}, but got {%d, %.4f, %d}", first.Interval, first.EaseFactor, first.Repetitions)
	}
	if !first.NextReviewDate.Equal(day("2024-01-02")) {
		t.Errorf("Expected next review 2024-01-02, but got %s", first.NextReviewDate.Format("2006-01-02"))
	}

	second, err := Schedule(first, 4, day("2024-01-02"))
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	if second.Interval != 6 || second.Repetitions != 2 || !almostEqual(second.EaseFactor, 2.36) {
		t.Errorf("Expected {6, 2.36, 2}, but got {%d, %.4f, %d}", second.Interval, second.EaseFactor, second.Repetitions)
	}
	if !second.NextReviewDate.Equal(day("2024-01-08")) {
		t.Errorf("Expected next review 2024-01-08, but got %s", second.NextReviewDate.Format("2006-01-02"))
	}

	third, err := Schedule(second, Easy, day("2024-01-08"))
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	// Quality 5 carries no penalty term, only the +0.1 bonus.
	if !almostEqual(third.EaseFactor, second.EaseFactor+0.1) {
		t.Errorf("Expected ease factor %.4f, but got %.4f", second.EaseFactor+0.1, third.EaseFactor)
	}
	if want := int(math.RoundToEven(6 * third.EaseFactor)); third.Interval != want || want != 15 {
		t.Errorf("Expected interval 15, but got %d", third.Interval)
	}
	if third.Repetitions != 3 {
		t.Errorf("Expected 3 repetitions, but got %d", third.Repetitions)
	}
	if !third.NextReviewDate.Equal(day("2024-01-23")) {
		t.Errorf("Expected next review 2024-01-23, but got %s", third.NextReviewDate.Format("2006-01-02"))
	}
}

func TestScheduleFailedRecall(t *testing.T) {
	states := []State{
		{Interval: 1, EaseFactor: 2.5, Repetitions: 0},
		{Interval: 6, EaseFactor: 2.36, Repetitions: 2},
		{Interval: 120, EaseFactor: 1.3, Repetitions: 9},
		{Interval: 33, EaseFactor: 3.1, Repetitions: 5},
	}
	today := day("2024-06-15")

	for _, s := range states {
		for q := Quality(0); q < Good; q++ {
			got, err := Schedule(s, q, today)
			if err != nil {
				t.Fatalf("Schedule(%+v, %d) returned an unexpected error: %v", s, q, err)
			}
			if got.Repetitions != 0 || got.Interval != 1 {
				t.Errorf("Expected reset to {1, 0}, but got {%d, %d}", got.Interval, got.Repetitions)
			}
			if got.EaseFactor != s.EaseFactor {
				t.Errorf("Expected ease factor %.2f to be unchanged, but got %.2f", s.EaseFactor, got.EaseFactor)
			}
			if !got.NextReviewDate.Equal(day("2024-06-16")) {
				t.Errorf("Expected next review 2024-06-16, but got %s", got.NextReviewDate.Format("2006-01-02"))
			}
			if got.Mode() != Learning {
				t.Errorf("Expected a failed card to be back in learning, but got %s", got.Mode())
			}
		}
	}
}

func TestScheduleEaseFloor(t *testing.T) {
	s := State{Interval: 10, EaseFactor: 1.3, Repetitions: 4}
	got, err := Schedule(s, Good, day("2024-01-01"))
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	// 1.3 + 0.1 - 0.24 = 1.16 before the floor.
	if got.EaseFactor != 1.3 {
		t.Errorf("Expected ease factor floored at 1.3, but got %.4f", got.EaseFactor)
	}
	if got.Interval != 13 {
		t.Errorf("Expected interval 13, but got %d", got.Interval)
	}
}

func TestScheduleProperties(t *testing.T) {
	today := day("2024-02-29")
	var states []State
	for _, ef := range []float64{1.3, 1.45, 2.0, 2.5, 3.7} {
		for _, iv := range []int{1, 2, 6, 17, 300} {
			for _, reps := range []int{0, 1, 2, 8} {
				states = append(states, State{Interval: iv, EaseFactor: ef, Repetitions: reps})
			}
		}
	}

	for _, s := range states {
		prevEase := 0.0
		for q := Good; q <= Easy; q++ {
			got, err := Schedule(s, q, today)
			if err != nil {
				t.Fatalf("Schedule(%+v, %d) returned an unexpected error: %v", s, q, err)
			}
			if got.EaseFactor < 1.3 {
				t.Errorf("Expected ease factor >= 1.3, but got %.4f", got.EaseFactor)
			}
			if got.Interval < 1 {
				t.Errorf("Expected interval >= 1, but got %d", got.Interval)
			}
			if got.Repetitions != s.Repetitions+1 {
				t.Errorf("Expected repetitions %d, but got %d", s.Repetitions+1, got.Repetitions)
			}
			if got.EaseFactor < prevEase {
				t.Errorf("Expected ease factor to be non-decreasing in quality, %.4f < %.4f at q=%d", got.EaseFactor, prevEase, q)
			}
			if !got.NextReviewDate.Equal(today.AddDate(0, 0, got.Interval)) {
				t.Errorf("Expected next review today+%d, but got %s", got.Interval, got.NextReviewDate.Format("2006-01-02"))
			}
			prevEase = got.EaseFactor
		}
	}
}

func TestScheduleIsNotIdempotent(t *testing.T) {
	today := day("2024-05-01")
	s := State{Interval: 6, EaseFactor: 2.5, Repetitions: 2}

	once, err := Schedule(s, Good, today)
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	twice, err := Schedule(once, Good, today)
	if err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	if once.Repetitions == twice.Repetitions || once.Interval == twice.Interval {
		t.Errorf("Expected a second application to progress further, but got %+v then %+v", once, twice)
	}
}

func TestScheduleDoesNotMutateInput(t *testing.T) {
	s := State{Interval: 6, EaseFactor: 2.5, Repetitions: 2, NextReviewDate: day("2024-01-01")}
	copyOf := s
	if _, err := Schedule(s, Easy, day("2024-01-07")); err != nil {
		t.Fatalf("Schedule() returned an unexpected error: %v", err)
	}
	if s != copyOf {
		t.Errorf("Expected input state to be unchanged, but got %+v", s)
	}
}

func TestScheduleRoundsHalfToEven(t *testing.T) {
	// 5 * 2.5 = 12.5 rounds to 12, 7 * 2.5 = 17.5 rounds to 18.
	testCases := []struct {
		interval int
		want     int
	}{
		{5, 12},
		{7, 18},
	}
	for _, tc := range testCases {
		// Quality 4 keeps the ease factor at 2.5.
		got, err := Schedule(State{Interval: tc.interval, EaseFactor: 2.5, Repetitions: 3}, 4, day("2024-01-01"))
		if err != nil {
			t.Fatalf("Schedule() returned an unexpected error: %v", err)
		}
		if got.Interval != tc.want {
			t.Errorf("Expected interval %d for previous interval %d, but got %d", tc.want, tc.interval, got.Interval)
		}
	}
}

func TestScheduleInvalidInput(t *testing.T) {
	valid := State{Interval: 1, EaseFactor: 2.5, Repetitions: 0, NextReviewDate: day("2024-01-01")}

	testCases := []struct {
		name    string
		state   State
		quality Quality
	}{
		{name: "quality above range", state: valid, quality: 7},
		{name: "negative quality", state: valid, quality: -1},
		{name: "zero interval", state: State{Interval: 0, EaseFactor: 2.5}, quality: Good},
		{name: "negative interval", state: State{Interval: -3, EaseFactor: 2.5}, quality: Hard},
		{name: "ease below floor", state: State{Interval: 1, EaseFactor: 1.2}, quality: Easy},
		{name: "negative repetitions", state: State{Interval: 1, EaseFactor: 2.5, Repetitions: -1}, quality: Good},
		{name: "infinite ease", state: State{Interval: 10, EaseFactor: math.Inf(1), Repetitions: 5}, quality: Good},
		{name: "interval above cap", state: State{Interval: math.MaxInt64 / 2, EaseFactor: 2.5, Repetitions: 5}, quality: Good},
		{name: "grown interval overflows cap", state: State{Interval: MaxInterval, EaseFactor: 2.5, Repetitions: 5}, quality: Good},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Schedule(tc.state, tc.quality, day("2024-01-01"))
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Expected ErrInvalidInput, but got %v", err)
			}
			if got != tc.state {
				t.Errorf("Expected state to be returned unchanged, but got %+v", got)
			}
		})
	}
}

func TestDue(t *testing.T) {
	s := State{Interval: 3, EaseFactor: 2.5, Repetitions: 1, NextReviewDate: day("2024-04-10")}

	if s.Due(time.Date(2024, 4, 9, 23, 59, 0, 0, time.UTC)) {
		t.Error("Expected card not to be due the day before")
	}
	if !s.Due(time.Date(2024, 4, 10, 0, 1, 0, 0, time.UTC)) {
		t.Error("Expected card to be due on its review date")
	}
	if !s.Due(day("2024-05-01")) {
		t.Error("Expected overdue card to be due")
	}
}
