package domain

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// DeviceRecord describes an AirPlay receiver resolved by service discovery.
// Records are values; two records are the same device when their keys match.
type DeviceRecord struct {
	Key           string   `json:"key"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	IPv4          []net.IP `json:"ipv4"`
	IPv6          []net.IP `json:"ipv6"`
	Port          int      `json:"port"`
	Model         string   `json:"model,omitempty"`
}

func (d DeviceRecord) Equal(other DeviceRecord) bool {
	return d.Key == other.Key
}

// BaseURL returns the control endpoint root built from the first IPv4
// address and the advertised port.
func (d DeviceRecord) BaseURL() (string, error) {
	if len(d.IPv4) == 0 || d.IPv4[0] == nil {
		return "", errors.New("device has no IPv4 address")
	}
	if d.Port <= 0 {
		return "", errors.New("device has no port")
	}
	return "http://" + net.JoinHostPort(d.IPv4[0].String(), strconv.Itoa(d.Port)), nil
}

func (d DeviceRecord) String() string {
	var b strings.Builder
	b.WriteString(d.QualifiedName)
	b.WriteString(" (")
	if d.Model != "" {
		b.WriteString(d.Model)
		b.WriteString(", ")
	}
	for _, ip := range d.IPv4 {
		b.WriteString(ip.String())
		b.WriteString(", ")
	}
	for _, ip := range d.IPv6 {
		b.WriteString(ip.String())
		b.WriteString(", ")
	}
	b.WriteString("port ")
	b.WriteString(strconv.Itoa(d.Port))
	b.WriteString(")")
	return b.String()
}
