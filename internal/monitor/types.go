package monitor

import (
	"time"

	"github.com/yourneighborhoodchef/pickupwatch/internal/pickup"
)

const (
	StatusInStock    = "in-stock"
	StatusOutOfStock = "out-of-stock"
	StatusError      = "error"
)

// Result describes one cycle.
type Result struct {
	Status    string
	Part      string
	Location  string
	Snapshot  pickup.Snapshot
	Total     int
	Changed   bool
	Notified  bool
	Err       error
	Timestamp time.Time
	Latency   time.Duration
}

// State is the loop's memory between cycles: the last snapshot that was
// compared. It starts empty and is never persisted.
type State struct {
	previous pickup.Snapshot
}

func (s *State) Previous() pickup.Snapshot {
	return append(pickup.Snapshot{}, s.previous...)
}

func (s *State) commit(snap pickup.Snapshot) {
	s.previous = append(pickup.Snapshot{}, snap...)
}
