package pool

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/buildwithgrove/ledgerclient/protocol"
)

// Interval for purging expired sanctions from the cache.
const sanctionCleanupInterval = 5 * time.Minute

// sanctionStore tracks demoted endpoints.
// Sanctions expire automatically via go-cache, after which rotation considers the endpoint again.
// Sanctions are keyed by endpoint address, so they survive a pool rebuild.
type sanctionStore struct {
	cache    *cache.Cache
	duration time.Duration
}

func newSanctionStore(duration time.Duration) *sanctionStore {
	return &sanctionStore{
		cache:    cache.New(duration, sanctionCleanupInterval),
		duration: duration,
	}
}

// add sanctions the endpoint for the store's duration, replacing any earlier sanction.
func (s *sanctionStore) add(addr protocol.EndpointAddr, reason protocol.ErrorKind) {
	s.cache.Set(string(addr), reason, s.duration)
}

// isSanctioned returns whether the endpoint is currently sanctioned, and why.
func (s *sanctionStore) isSanctioned(addr protocol.EndpointAddr) (bool, protocol.ErrorKind) {
	reason, found := s.cache.Get(string(addr))
	if !found {
		return false, ""
	}
	return true, reason.(protocol.ErrorKind)
}

func (s *sanctionStore) remove(addr protocol.EndpointAddr) {
	s.cache.Delete(string(addr))
}
