package protocol

import (
	"net"
	"net/url"
	"strings"
)

// EndpointAddr is used as the unique identifier for a ledger endpoint.
// It is the endpoint's JSON-RPC URL, exactly as configured.
//
// For example:
//   - "https://eth-mainnet.rpc.grove.city/v1/abcd1234"
//   - "http://127.0.0.1:8545"
type EndpointAddr string

type EndpointAddrList []EndpointAddr

func (e EndpointAddr) String() string {
	return string(e)
}

// Host returns the host portion of the endpoint's URL, without the port.
// It returns an empty string if the address is not a valid URL.
func (e EndpointAddr) Host() string {
	u, err := url.Parse(string(e))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsLocal returns true if the endpoint is believed to be local or low-latency:
//   - a loopback host, e.g. "localhost", "127.0.0.1", "::1"
//   - a private network address, e.g. "10.0.0.1", "192.168.1.100"
//
// Local endpoints get a shorter admission time budget.
func (e EndpointAddr) IsLocal() bool {
	host := e.Host()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

func (e EndpointAddrList) String() string {
	// Converts each EndpointAddr to string and joins them with a comma
	addrs := make([]string, len(e))
	for i, addr := range e {
		addrs[i] = string(addr)
	}
	return strings.Join(addrs, ", ")
}
