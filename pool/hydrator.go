package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/health"
)

// Hydrator provides the functionality required for health check.
var _ health.Check = &Hydrator{}

// componentNameHydrator is the name used when reporting the status of the hydrator
const componentNameHydrator = "endpoint-hydrator"

// Hydrator periodically re-runs admission on a pool's candidates, so that endpoints
// rejected at build time can join once they recover, and endpoints that fell behind
// or switched networks are dropped.
type Hydrator struct {
	Logger polylog.Logger
	Pool   *Pool

	// RunInterval is the interval between two re-admission runs.
	RunInterval time.Duration

	// isHealthy indicates whether the most recent run admitted at least one endpoint.
	isHealthy         bool
	healthStatusMutex sync.RWMutex
}

// Start runs re-admission every RunInterval until ctx is done.
// The first run happens after one interval: the pool is expected to be freshly built.
func (h *Hydrator) Start(ctx context.Context) error {
	if h.Pool == nil {
		return errors.New("an instance of Pool must be provided")
	}
	if h.RunInterval <= 0 {
		return errors.New("the hydrator run interval must be positive")
	}

	h.setHealthy(h.Pool.IsAlive())

	go func() {
		ticker := time.NewTicker(h.RunInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				h.Logger.Info().Msg("stopping endpoint hydrator")
				return
			case <-ticker.C:
				h.run(ctx)
			}
		}
	}()

	return nil
}

func (h *Hydrator) run(ctx context.Context) {
	h.Logger.Debug().Msg("running endpoint hydrator")

	err := h.Pool.Rehydrate(ctx)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("endpoint re-admission failed")
	}

	h.setHealthy(err == nil)
}

func (h *Hydrator) setHealthy(healthy bool) {
	h.healthStatusMutex.Lock()
	defer h.healthStatusMutex.Unlock()
	h.isHealthy = healthy
}

// Name returns the name of the component being checked.
func (h *Hydrator) Name() string {
	return componentNameHydrator
}

// IsAlive returns true if the most recent re-admission run admitted at least one endpoint.
func (h *Hydrator) IsAlive() bool {
	h.healthStatusMutex.RLock()
	defer h.healthStatusMutex.RUnlock()
	return h.isHealthy
}
