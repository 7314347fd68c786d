package netutil

import (
	"errors"
	"net"
	"strings"
)

// ErrNoIface is returned when no interface address suits the cluster.
var ErrNoIface = errors.New("could not get any suitable inet iface")

// LocalAddr returns the IPv4 address other hosts should use to reach this
// one. See SelectAddr.
func LocalAddr(prioPats []string) (string, error) {
	ifaddrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	var addrs []string
	for _, a := range ifaddrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.To4() == nil {
			continue
		}
		addrs = append(addrs, ipn.IP.String())
	}
	return SelectAddr(addrs, prioPats)
}

// SelectAddr picks the first address matching the earliest prefix of
// prioPats. Without a match it falls back to the first address outside
// 10/8 and 127/8.
func SelectAddr(addrs []string, prioPats []string) (string, error) {
	for _, pat := range prioPats {
		for _, a := range addrs {
			if strings.HasPrefix(a, pat) {
				return a, nil
			}
		}
	}
	for _, a := range addrs {
		if !strings.HasPrefix(a, "10.") && !strings.HasPrefix(a, "127.") {
			return a, nil
		}
	}
	return "", ErrNoIface
}
