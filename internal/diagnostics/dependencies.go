// Package diagnostics reports whether the host can discover receivers and
// reach the platform API.
package diagnostics

import (
	"net"

	"github.com/kar10s/airtwitch/internal/twitch"
)

var (
	resolveClientID     = twitch.ResolveClientID
	multicastInterfaces = detectMulticastInterfaces
)

type ClientIDStatus struct {
	Found  bool   `json:"found"`
	Source string `json:"source"`
}

type InterfaceStatus struct {
	Name  string   `json:"name"`
	Addrs []string `json:"addrs"`
}

type Report struct {
	ClientID            ClientIDStatus    `json:"client_id"`
	MulticastInterfaces []InterfaceStatus `json:"multicast_interfaces"`
	InterfaceError      string            `json:"interface_error,omitempty"`
	AllRequiredPresent  bool              `json:"all_required_present"`
}

// Detect checks that a client ID can be resolved from override or its
// fallbacks and that at least one IPv4 multicast interface is up.
func Detect(override string) Report {
	_, source := resolveClientID(override)
	report := Report{
		ClientID: ClientIDStatus{
			Found:  source != twitch.ClientIDMissing,
			Source: string(source),
		},
	}

	ifaces, err := multicastInterfaces()
	if err != nil {
		report.InterfaceError = err.Error()
	}
	report.MulticastInterfaces = ifaces
	report.AllRequiredPresent = report.ClientID.Found && len(ifaces) > 0
	return report
}

func detectMulticastInterfaces() ([]InterfaceStatus, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := []InterfaceStatus{}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		status := InterfaceStatus{Name: iface.Name}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			status.Addrs = append(status.Addrs, ipNet.IP.String())
		}
		if len(status.Addrs) > 0 {
			out = append(out, status)
		}
	}
	return out, nil
}
