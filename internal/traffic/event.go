package traffic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Protocol int

const (
	Unknown Protocol = iota
	HTTP
	HTTPS
	FTP
	SSH
	SMTP
	DNS
)

var protocolNames = map[Protocol]string{
	Unknown: "unknown",
	HTTP:    "HTTP",
	HTTPS:   "HTTPS",
	FTP:     "FTP",
	SSH:     "SSH",
	SMTP:    "SMTP",
	DNS:     "DNS",
}

var protocolFromName = map[string]Protocol{
	"unknown": Unknown,
	"HTTP":    HTTP,
	"HTTPS":   HTTPS,
	"FTP":     FTP,
	"SSH":     SSH,
	"SMTP":    SMTP,
	"DNS":     DNS,
}

// Protocols is the fixed set the generator draws from by default.
var Protocols = []Protocol{HTTP, HTTPS, FTP, SSH, SMTP, DNS}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return "unknown"
}

// ParseProtocol accepts protocol names case-insensitively.
func ParseProtocol(name string) (Protocol, error) {
	if p, ok := protocolFromName[strings.ToUpper(name)]; ok {
		return p, nil
	}
	if strings.EqualFold(name, "unknown") {
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown protocol %q", name)
}

func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Protocol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Location struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

// Origin is the single endpoint carried by externally ingested events.
type Origin struct {
	IP        string    `json:"ip"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one traffic observation. Suspicious is fixed when the event is
// built and is never changed afterwards; Event values are passed by copy.
type Event struct {
	Source      *Location `json:"source,omitempty"`
	Destination *Location `json:"destination,omitempty"`
	Origin      *Origin   `json:"origin,omitempty"`
	Protocol    Protocol  `json:"protocol"`
	Size        int       `json:"size,omitempty"`
	DistanceKm  float64   `json:"distanceKm,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Suspicious  bool      `json:"suspicious"`
}

const (
	FeedGenerator = "generator"
	FeedIngest    = "ingest"
)

// Feed names the producer an event came from.
func (e Event) Feed() string {
	if e.Origin != nil {
		return FeedIngest
	}
	return FeedGenerator
}

// Stats is an immutable snapshot of the aggregate counters.
type Stats struct {
	TotalEvents      uint64 `json:"totalEvents"`
	SuspiciousEvents uint64 `json:"suspiciousEvents"`
}

type Alert struct {
	Message string `json:"message"`
	Event   Event  `json:"event"`
}

// NewAlert builds the notice for a suspicious event. ok is false for
// events that are not suspicious.
func NewAlert(ev Event) (Alert, bool) {
	if !ev.Suspicious {
		return Alert{}, false
	}
	var msg string
	switch {
	case ev.Origin != nil:
		msg = fmt.Sprintf("Suspicious traffic detected from %s", ev.Origin.IP)
	case ev.Source != nil && ev.Destination != nil:
		msg = fmt.Sprintf("Suspicious %s traffic detected from %s to %s",
			ev.Protocol, ev.Source.Name, ev.Destination.Name)
	default:
		msg = fmt.Sprintf("Suspicious %s traffic detected", ev.Protocol)
	}
	return Alert{Message: msg, Event: ev}, true
}
