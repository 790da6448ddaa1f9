package services

import (
	"net"
	"time"
)

var processStarted = time.Now()

// ProcessUptime returns the number of whole seconds since the process started
func ProcessUptime() int64 {
	return int64(time.Since(processStarted).Seconds())
}

// PrimaryIPv4 returns the first non-loopback IPv4 address of an up interface,
// or "Unknown" when there is none
func PrimaryIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "Unknown"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "Unknown"
}
