package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default browse parameters for appliances that expose a local MQTT broker.
const (
	DefaultServiceType = "_dyson_mqtt._tcp"
	DefaultDomain      = "local."
)

// nameSeparator splits an advertised instance name into topic prefix and serial.
const nameSeparator = "_"

// ServiceRecord is one discovered service instance as advertised over mDNS.
type ServiceRecord struct {
	// Name is the advertised instance name, e.g. "438_AB1-EU-KAA0001A".
	Name string `json:"name"`

	// Host is the advertised target host name.
	Host string `json:"host"`

	// Port is the advertised MQTT port.
	Port int `json:"port"`

	// IPv4 and IPv6 are addresses carried in the mDNS answer, if any.
	IPv4 []string `json:"ipv4,omitempty"`
	IPv6 []string `json:"ipv6,omitempty"`

	// SeenAt is when the record was last written to the registry.
	SeenAt time.Time `json:"seen_at"`
}

// Serial returns the identifier part of the advertised name.
func (r ServiceRecord) Serial() string {
	_, serial, err := SplitServiceName(r.Name)
	if err != nil {
		return ""
	}
	return serial
}

// Network is the resolved transport location of one appliance.
type Network struct {
	ServiceName string `json:"service_name"`
	TopicPrefix string `json:"topic_prefix"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Address     string `json:"address"`
}

// IsZero reports whether n carries no resolution result.
func (n Network) IsZero() bool {
	return n == Network{}
}

// HostPort returns the dialable address, preferring the resolved address over the host name.
func (n Network) HostPort() string {
	host := n.Address
	if host == "" {
		host = n.Host
	}
	return net.JoinHostPort(host, strconv.Itoa(n.Port))
}

// SplitServiceName splits an advertised instance name at the first
// separator. The part before it is the MQTT topic prefix (the product
// type), the remainder is the device serial.
//
// Example: "438_AB1-EU-KAA0001A" -> ("438", "AB1-EU-KAA0001A")
func SplitServiceName(name string) (prefix, serial string, err error) {
	prefix, serial, found := strings.Cut(name, nameSeparator)
	if !found || prefix == "" || serial == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}
	return prefix, serial, nil
}
