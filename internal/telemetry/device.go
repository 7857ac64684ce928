package telemetry

import (
	"errors"
	"net"
	"sort"
)

// ErrNoHardwareAddress is returned when no interface has a MAC address.
var ErrNoHardwareAddress = errors.New("telemetry: no hardware address found")

// DeviceID returns a stable hardware identifier for this device: the MAC
// address of the first non-loopback interface, ordered by interface index.
func DeviceID() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	return deviceIDFrom(ifaces)
}

func deviceIDFrom(ifaces []net.Interface) (string, error) {
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Index < ifaces[j].Index })
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String(), nil
	}
	return "", ErrNoHardwareAddress
}
