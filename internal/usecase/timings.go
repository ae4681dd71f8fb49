package usecase

import "time"

// Timings are the protocol delays. Both clients of a room must use the same values.
type Timings struct {
	CountdownStart int
	CountdownTick  time.Duration
	GoHold         time.Duration

	LocalSettle time.Duration
	HostSettle  time.Duration
	GuestSettle time.Duration

	ReconcileInitial  time.Duration
	ReconcileMax      time.Duration
	ReconcileDeadline time.Duration

	ClearDelay       time.Duration
	RoomInactivity   time.Duration
	OperationTimeout time.Duration
	RoomCodeRetries  int
}

func DefaultTimings() Timings {
	return Timings{
		CountdownStart: 3,
		CountdownTick:  time.Second,
		GoHold:         500 * time.Millisecond,

		LocalSettle: time.Second,
		HostSettle:  time.Second,
		GuestSettle: 500 * time.Millisecond,

		ReconcileInitial:  500 * time.Millisecond,
		ReconcileMax:      2 * time.Second,
		ReconcileDeadline: 10 * time.Second,

		ClearDelay:       3 * time.Second,
		RoomInactivity:   30 * time.Minute,
		OperationTimeout: 10 * time.Second,
		RoomCodeRetries:  5,
	}
}
