package config

import (
	"net"
	"strconv"
	"strings"
)

// DefaultBroadcast is used when the local network cannot be determined.
const DefaultBroadcast = "192.168.1.255"

// IsValidIPv4 reports whether s is a dotted quad with every octet in 0-255.
func IsValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strings.HasPrefix(p, "+") {
			return false
		}
	}
	return true
}

// IsValidPort reports whether p is a usable UDP port.
func IsValidPort(p int) bool {
	return p >= 1 && p <= 65535
}

// BroadcastAddress returns the /24 broadcast address of ip, or
// DefaultBroadcast when ip is not a valid IPv4 address.
func BroadcastAddress(ip string) string {
	if !IsValidIPv4(ip) {
		return DefaultBroadcast
	}
	return ip[:strings.LastIndex(ip, ".")] + ".255"
}

// LocalIPv4 returns the first private, non-loopback IPv4 address of this
// host, falling back to any non-link-local one. It returns "" when none exists.
func LocalIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	var fallback string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		if ip.IsPrivate() {
			return ip.String()
		}
		if fallback == "" {
			fallback = ip.String()
		}
	}
	return fallback
}
