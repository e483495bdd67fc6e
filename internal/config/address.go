package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address is a parsed BinaryMonitorServerAddress resource value:
// "ip4://host:port" or "ip6://[host]:port". original_source's resource
// string convention has no stdlib or pack-library parser (it's VICE's
// own scheme), so this is hand-rolled.
type Address struct {
	Scheme string // "ip4" or "ip6"
	Host   string
	Port   uint16
}

// DefaultAddress matches original_source's BinaryMonitorServerAddress
// default resource value.
const DefaultAddress = "ip4://127.0.0.1:6502"

// ParseAddress parses a VICE-style monitor server address string.
func ParseAddress(s string) (*Address, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return nil, fmt.Errorf("address %q missing scheme (expected ip4:// or ip6://)", s)
	}

	switch scheme {
	case "ip4", "ip6":
	default:
		return nil, fmt.Errorf("unsupported address scheme %q", scheme)
	}

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return nil, fmt.Errorf("address %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("address %q: invalid port %q: %w", s, portStr, err)
	}

	return &Address{Scheme: scheme, Host: host, Port: uint16(port)}, nil
}

// Network returns the net.Listen network name for this address's scheme.
func (a *Address) Network() string {
	if a.Scheme == "ip6" {
		return "tcp6"
	}
	return "tcp4"
}

// String renders the address back into VICE resource-string form.
func (a *Address) String() string {
	return fmt.Sprintf("%s://%s", a.Scheme, net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port))))
}

// DialString returns the host:port pair suitable for net.Listen/net.Dial.
func (a *Address) DialString() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}
