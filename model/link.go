package model

import "time"

// Speed is the negotiated line rate of a cable. Empty means unspecified.
type Speed string

const (
	SpeedUnset Speed = ""
	Speed100M  Speed = "100M"
	Speed1G    Speed = "1G"
	Speed10G   Speed = "10G"
	Speed25G   Speed = "25G"
	Speed40G   Speed = "40G"
	Speed100G  Speed = "100G"
)

// Valid reports whether s is unset or one of the known speeds.
func (s Speed) Valid() bool {
	switch s {
	case SpeedUnset, Speed100M, Speed1G, Speed10G, Speed25G, Speed40G, Speed100G:
		return true
	}
	return false
}

// Link is one undirected cable between two port coordinates.
type Link struct {
	ID        string    `json:"id" toml:"id"`
	From      PortRef   `json:"from" toml:"from"`
	To        PortRef   `json:"to" toml:"to"`
	Kind      PortKind  `json:"kind" toml:"kind"`
	Speed     Speed     `json:"speed,omitempty" toml:"speed"`
	Color     string    `json:"color,omitempty" toml:"color"`
	CreatedAt time.Time `json:"created_at" toml:"created_at"`
}

// Other returns the endpoint opposite p. ok is false when p is not an
// endpoint of l.
func (l *Link) Other(p PortRef) (PortRef, bool) {
	switch p {
	case l.From:
		return l.To, true
	case l.To:
		return l.From, true
	}
	return PortRef{}, false
}

// Clone returns a shallow copy safe to mutate.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
