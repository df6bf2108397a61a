package agenda

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/israelwong/promediamx-sub002/pkg/logging"
)

type stubCounter struct {
	count int
	err   error
	calls int
}

func (s *stubCounter) CountActiveAtSlot(ctx context.Context, businessID, serviceTypeID uuid.UUID, start time.Time) (int, error) {
	s.calls++
	return s.count, s.err
}

type stubExceptions struct {
	exc *ScheduleException
	err error
}

func (s *stubExceptions) ExceptionFor(ctx context.Context, businessID uuid.UUID, date time.Time) (*ScheduleException, error) {
	return s.exc, s.err
}

func testSchedule() ScheduleConfig {
	return ScheduleConfig{
		BusinessID: uuid.New(),
		Timezone:   "UTC",
		Windows: []WeeklyWindow{
			{Weekday: time.Monday, OpenTime: "09:00", CloseTime: "18:00"},
			{Weekday: time.Tuesday, OpenTime: "09:00", CloseTime: "18:00"},
			{Weekday: time.Wednesday, OpenTime: "09:00", CloseTime: "18:00"},
			{Weekday: time.Thursday, OpenTime: "09:00", CloseTime: "18:00"},
			{Weekday: time.Friday, OpenTime: "09:00", CloseTime: "14:00"},
		},
	}
}

func testService() ServiceType {
	return ServiceType{
		ID:              uuid.New(),
		Name:            "Corte de cabello",
		DurationMinutes: 60,
		ConcurrencyCap:  2,
	}
}

// Monday, 16 March 2026.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2026, time.March, 16, hour, minute, 0, 0, time.UTC)
}

func TestCheckSlotInsideWindow(t *testing.T) {
	arbiter := NewArbiter(&stubCounter{count: 0}, &stubExceptions{}, logging.Default())

	decision, err := arbiter.CheckSlot(context.Background(), testService(), mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if !decision.Available {
		t.Fatalf("expected available, got reason %q", decision.Reason)
	}
}

func TestCheckSlotOutsideWindow(t *testing.T) {
	counter := &stubCounter{}
	arbiter := NewArbiter(counter, &stubExceptions{}, logging.Default())

	cases := []time.Time{
		mondayAt(8, 0),   // before opening
		mondayAt(17, 30), // ends 18:30, past closing
		mondayAt(20, 0),  // after closing
	}
	for _, start := range cases {
		decision, err := arbiter.CheckSlot(context.Background(), testService(), start, testSchedule())
		if err != nil {
			t.Fatalf("CheckSlot(%s): %v", start, err)
		}
		if decision.Available {
			t.Errorf("CheckSlot(%s) available, want rejection", start)
		}
		if decision.Reason == "" {
			t.Errorf("CheckSlot(%s) missing reason", start)
		}
	}
	if counter.calls != 0 {
		t.Errorf("occupancy counted %d times for out-of-window slots, want 0", counter.calls)
	}
}

func TestCheckSlotUnservicedDay(t *testing.T) {
	arbiter := NewArbiter(&stubCounter{}, &stubExceptions{}, logging.Default())

	// Saturday has no weekly window.
	saturday := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	decision, err := arbiter.CheckSlot(context.Background(), testService(), saturday, testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if decision.Available {
		t.Fatal("expected unserviced day to be rejected")
	}
}

func TestCheckSlotClosedException(t *testing.T) {
	exc := &ScheduleException{Closed: true, Reason: "día feriado"}
	arbiter := NewArbiter(&stubCounter{}, &stubExceptions{exc: exc}, logging.Default())

	decision, err := arbiter.CheckSlot(context.Background(), testService(), mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if decision.Available {
		t.Fatal("expected closed exception to reject the slot")
	}
	if !strings.Contains(decision.Reason, "16/03/2026") {
		t.Errorf("reason %q should name the date", decision.Reason)
	}
	if !strings.Contains(decision.Reason, "día feriado") {
		t.Errorf("reason %q should carry the exception reason", decision.Reason)
	}
}

func TestCheckSlotExceptionHoursGovern(t *testing.T) {
	// Exception shortens Monday to 10:00-12:00.
	exc := &ScheduleException{OpenTime: "10:00", CloseTime: "12:00"}
	arbiter := NewArbiter(&stubCounter{}, &stubExceptions{exc: exc}, logging.Default())

	decision, err := arbiter.CheckSlot(context.Background(), testService(), mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if !decision.Available {
		t.Fatalf("10:00 should fit exception hours, got %q", decision.Reason)
	}

	decision, err = arbiter.CheckSlot(context.Background(), testService(), mondayAt(13, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if decision.Available {
		t.Fatal("13:00 is inside the weekly window but outside the exception hours")
	}
}

func TestCheckSlotConcurrencyCap(t *testing.T) {
	svc := testService() // cap 2

	// One below the cap: available.
	arbiter := NewArbiter(&stubCounter{count: 1}, &stubExceptions{}, logging.Default())
	decision, err := arbiter.CheckSlot(context.Background(), svc, mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if !decision.Available {
		t.Fatalf("count below cap should be available, got %q", decision.Reason)
	}

	// At the cap: full.
	arbiter = NewArbiter(&stubCounter{count: 2}, &stubExceptions{}, logging.Default())
	decision, err = arbiter.CheckSlot(context.Background(), svc, mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if decision.Available {
		t.Fatal("count at cap should be rejected")
	}
}

func TestCheckSlotZeroCapDefaultsToOne(t *testing.T) {
	svc := testService()
	svc.ConcurrencyCap = 0

	arbiter := NewArbiter(&stubCounter{count: 1}, &stubExceptions{}, logging.Default())
	decision, err := arbiter.CheckSlot(context.Background(), svc, mondayAt(10, 0), testSchedule())
	if err != nil {
		t.Fatalf("CheckSlot: %v", err)
	}
	if decision.Available {
		t.Fatal("zero cap must behave as cap 1")
	}
}

func TestCheckSlotPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("db down")

	arbiter := NewArbiter(&stubCounter{err: boom}, &stubExceptions{}, logging.Default())
	if _, err := arbiter.CheckSlot(context.Background(), testService(), mondayAt(10, 0), testSchedule()); !errors.Is(err, boom) {
		t.Errorf("count error not propagated, got %v", err)
	}

	arbiter = NewArbiter(&stubCounter{}, &stubExceptions{err: boom}, logging.Default())
	if _, err := arbiter.CheckSlot(context.Background(), testService(), mondayAt(10, 0), testSchedule()); !errors.Is(err, boom) {
		t.Errorf("exception error not propagated, got %v", err)
	}
}
