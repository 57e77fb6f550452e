package monitor

import "time"

// Probe is the health of an optional dependency.
type Probe string

const (
	ProbeUp       Probe = "up"
	ProbeDown     Probe = "down"
	ProbeDisabled Probe = "disabled"
)

type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      Probe     `json:"redis"`
	NATS       Probe     `json:"nats"`
	LastCheck  time.Time `json:"last_check"`
}

// Healthy reports whether every configured dependency is reachable.
func (s Status) Healthy() bool {
	return s.PostgreSQL && s.Redis != ProbeDown && s.NATS != ProbeDown
}
