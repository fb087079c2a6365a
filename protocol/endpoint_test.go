package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndpointAddr_IsLocal(t *testing.T) {
	tests := []struct {
		name         string
		endpointAddr EndpointAddr
		expected     bool
	}{
		{
			name:         "localhost with port",
			endpointAddr: EndpointAddr("http://localhost:8545"),
			expected:     true,
		},
		{
			name:         "IPv4 loopback",
			endpointAddr: EndpointAddr("http://127.0.0.1:8545"),
			expected:     true,
		},
		{
			name:         "IPv6 loopback",
			endpointAddr: EndpointAddr("http://[::1]:8545"),
			expected:     true,
		},
		{
			name:         "private IPv4 address",
			endpointAddr: EndpointAddr("https://192.168.1.100:8545"),
			expected:     true,
		},
		{
			name:         "private 10.x address",
			endpointAddr: EndpointAddr("http://10.0.0.1:3000"),
			expected:     true,
		},
		{
			name:         "public hostname",
			endpointAddr: EndpointAddr("https://eth-mainnet.rpc.grove.city/v1/abcd1234"),
			expected:     false,
		},
		{
			name:         "public IPv4 address",
			endpointAddr: EndpointAddr("https://8.8.8.8"),
			expected:     false,
		},
		{
			name:         "invalid URL",
			endpointAddr: EndpointAddr("://not a url"),
			expected:     false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.endpointAddr.IsLocal())
		})
	}
}

func TestEndpointAddrList_String(t *testing.T) {
	list := EndpointAddrList{"http://a:1", "http://b:2"}
	require.Equal(t, "http://a:1, http://b:2", list.String())
}
