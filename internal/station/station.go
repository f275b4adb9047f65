package station

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Station identifies a seismic sensor site by its network and station codes.
type Station struct {
	Network string `json:"network"` // FDSN network code, e.g. "IU"
	Name    string `json:"station"` // Station code, e.g. "ANMO"
}

// New creates a Station from its network and station codes.
func New(network, name string) Station {
	return Station{Network: network, Name: name}
}

// Parse parses a station given in the "NET_STA" form.
func Parse(s string) (Station, error) {
	network, name, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok || network == "" || name == "" {
		return Station{}, fmt.Errorf("invalid station '%s': expected NET_STA", s)
	}
	return New(network, name), nil
}

func (s Station) String() string {
	return s.Network + "_" + s.Name
}

func (s *Station) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := Parse(value.Value)
	if err != nil {
		return fmt.Errorf("station.Station: %w", err)
	}

	*s = parsed
	return nil
}

func (s Station) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Channel is one sensor component of a station, identified by its location and
// channel codes.
type Channel struct {
	Location string `json:"location"` // Location code, e.g. "00"
	Code     string `json:"channel"`  // Channel code, e.g. "LHZ"
}

// NewChannel creates a Channel from location and channel codes.
func NewChannel(location, code string) Channel {
	return Channel{Location: location, Code: code}
}

// ParseChannel parses a channel given in the "LL-CCC" form.
func ParseChannel(s string) (Channel, error) {
	location, code, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || code == "" {
		return Channel{}, fmt.Errorf("invalid channel '%s': expected LL-CCC", s)
	}
	return NewChannel(location, code), nil
}

func (c Channel) String() string {
	return c.Location + "-" + c.Code
}

// Band returns the band and instrument codes of the channel (the first two
// characters, e.g. "LH" for "LHZ").
func (c Channel) Band() string {
	if len(c.Code) < 2 {
		return c.Code
	}
	return c.Code[:2]
}

// Orientation returns the orientation code of the channel (the last character).
func (c Channel) Orientation() byte {
	if c.Code == "" {
		return 0
	}
	return c.Code[len(c.Code)-1]
}

// ChannelArray is an ordered set of channels which a single metric value is
// computed from. Order matters for digests and result identifiers.
type ChannelArray []Channel

// NewChannelArray creates a ChannelArray from the given channels.
func NewChannelArray(channels ...Channel) ChannelArray {
	return ChannelArray(channels)
}

func (a ChannelArray) String() string {
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
