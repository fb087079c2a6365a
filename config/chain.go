package config

import (
	"errors"
	"fmt"

	"github.com/buildwithgrove/ledgerclient/config/utils"
	"github.com/buildwithgrove/ledgerclient/protocol"
)

/* --------------------------------- Chain Config Struct -------------------------------- */

// ChainConfig identifies the ledger and lists the endpoints serving it.
type ChainConfig struct {
	// ChainID is the expected chain identity; endpoints reporting another one are rejected.
	ChainID uint64 `yaml:"chain_id"`

	// Endpoints are the JSON-RPC URLs of the ledger, primary first.
	Endpoints []string `yaml:"endpoints"`

	// WebsocketURL is optional. If set, new heads announced on it wake the receipt monitor.
	WebsocketURL string `yaml:"websocket_url"`

	// Headers are sent with every request, e.g. an API key header.
	Headers map[string]string `yaml:"headers"`
}

// EndpointAddrs returns the configured endpoints, in configuration order.
func (c ChainConfig) EndpointAddrs() protocol.EndpointAddrList {
	addrs := make(protocol.EndpointAddrList, len(c.Endpoints))
	for i, endpoint := range c.Endpoints {
		addrs[i] = protocol.EndpointAddr(endpoint)
	}
	return addrs
}

/* --------------------------------- Chain Config Private Helpers -------------------------------- */

func (c ChainConfig) validate() error {
	if c.ChainID == 0 {
		return errors.New("chain_id must be set")
	}
	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint must be configured")
	}

	seen := make(map[string]struct{}, len(c.Endpoints))
	for _, endpoint := range c.Endpoints {
		if !utils.IsValidURL(endpoint, "http", "https") {
			return fmt.Errorf("invalid endpoint URL %q: must be an http or https URL", endpoint)
		}
		if _, ok := seen[endpoint]; ok {
			return fmt.Errorf("duplicate endpoint URL %q", endpoint)
		}
		seen[endpoint] = struct{}{}
	}

	if c.WebsocketURL != "" && !utils.IsValidURL(c.WebsocketURL, "ws", "wss") {
		return fmt.Errorf("invalid websocket URL %q: must be a ws or wss URL", c.WebsocketURL)
	}

	return nil
}
