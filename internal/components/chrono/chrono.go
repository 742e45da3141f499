package chrono

import "time"

// API is the clock used for scrape timestamps.
//
// note: fault injection point
type API interface {
	Now() time.Time
}

// StandardImpl reads the system clock in UTC.
type StandardImpl struct{}

func NewStandardImpl() StandardImpl {
	return StandardImpl{}
}

func (StandardImpl) Now() time.Time {
	return time.Now().UTC()
}

// FixedImpl always returns the same instant.
type FixedImpl struct {
	Instant time.Time
}

func NewFixedImpl(instant time.Time) FixedImpl {
	return FixedImpl{Instant: instant.UTC()}
}

func (f FixedImpl) Now() time.Time {
	return f.Instant
}
