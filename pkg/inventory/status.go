package inventory

import (
	"sync"
	"time"

	pz "github.com/weberc2/httpeasy"
)

// TickSummary is what the status listener reports about the most recent
// monitor tick.
type TickSummary struct {
	Time           time.Time `json:"time"`
	Nodes          int       `json:"nodes"`
	AvailableNodes int       `json:"availableNodes"`
	Added          int       `json:"added"`
	Removed        int       `json:"removed"`
	NewlyAvailable int       `json:"newlyAvailable"`
	Refreshed      int       `json:"refreshed"`
	RefreshFailed  int       `json:"refreshFailed"`
	Deleted        int       `json:"deleted"`
	DeleteFailed   int       `json:"deleteFailed"`
}

// Status tracks the most recent tick for the optional HTTP status listener.
// The zero value is ready to use; a nil *Status discards records so the
// monitor doesn't have to care whether the listener is enabled.
type Status struct {
	mu     sync.Mutex
	last   TickSummary
	ticked bool
}

func (s *Status) record(summary TickSummary) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = summary
	s.ticked = true
}

// Last returns the most recent tick summary and whether a tick has
// happened yet.
func (s *Status) Last() (TickSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.ticked
}

// Routes returns the health/status routes for the monitor's HTTP listener.
func (s *Status) Routes() []pz.Route {
	return []pz.Route{{
		Path:   "/health",
		Method: "GET",
		Handler: func(r pz.Request) pz.Response {
			return pz.Ok(pz.String("OK"))
		},
	}, {
		Path:   "/status",
		Method: "GET",
		Handler: func(r pz.Request) pz.Response {
			last, ticked := s.Last()
			body := struct {
				Ready    bool         `json:"ready"`
				LastTick *TickSummary `json:"lastTick,omitempty"`
			}{Ready: ticked}
			if ticked {
				body.LastTick = &last
			}
			return pz.Ok(pz.JSON(&body))
		},
	}}
}
