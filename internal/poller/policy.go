package poller

import "time"

// Policy bounds the polling loop. The zero value is not usable; start from
// DefaultPolicy and override.
type Policy struct {
	// Interval is the fixed delay between two status queries.
	Interval time.Duration
	// Timeout caps the wall-clock time spent awaiting one job.
	Timeout time.Duration
	// MaxPolls caps the number of status queries; 0 means only Timeout applies.
	MaxPolls int
	// MaxTransient is how many consecutive failed status queries are absorbed
	// before giving up.
	MaxTransient int
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:     2 * time.Second,
		Timeout:      10 * time.Minute,
		MaxTransient: 3,
	}
}

// normalize fills unset fields from the defaults so the loop is always bounded.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.MaxPolls < 0 {
		p.MaxPolls = 0
	}
	if p.MaxTransient < 0 {
		p.MaxTransient = 0
	}
	return p
}
