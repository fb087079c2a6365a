// Package health reports whether the client is ready to serve calls.
package health

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/pokt-network/poktroll/pkg/polylog"
)

const (
	// imageTagEnvVar is set as a build argument of the Docker image.
	imageTagEnvVar  = "IMAGE_TAG"
	defaultImageTag = "development"
)

type readiness string

const (
	statusReady readiness = "ready"
	// statusNotReady: at least one component is not alive, e.g. the endpoint pool is empty.
	statusNotReady readiness = "not_ready"
)

type (
	// Check is implemented by every component whose health decides the client's readiness.
	Check interface {
		Name() string
		IsAlive() bool
	}

	// PoolReporter describes the endpoint pool in health responses. It is satisfied by *pool.Pool.
	PoolReporter interface {
		ChainID() uint64
		Size() int
		Generation() uint64
	}

	// Checker serves the readiness of a set of components.
	Checker struct {
		Logger     polylog.Logger
		Components []Check
		// Pool is optional.
		Pool PoolReporter
	}
)

// healthResponse is the body of a `/healthz` response.
type healthResponse struct {
	Status      readiness       `json:"status"`
	ImageTag    string          `json:"imageTag"`
	ReadyStates map[string]bool `json:"readyStates,omitempty"`

	ChainID           uint64 `json:"chainId,omitempty"`
	AdmittedEndpoints int    `json:"admittedEndpoints"`
	// PoolGeneration counts the rebuilds of the endpoint pool.
	PoolGeneration uint64 `json:"poolGeneration"`
}

// HealthzHandler answers 200 OK once every component is alive, and 503 Service Unavailable until then.
func (c *Checker) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	response := c.healthResponse()

	body, err := json.Marshal(response)
	if err != nil {
		c.Logger.Error().Err(err).Msg("error marshaling health check response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == statusReady {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if _, err := w.Write(body); err != nil {
		c.Logger.Warn().Err(err).Msg("error writing health check response")
	}
}

// IsReady returns true if every component is alive.
func (c *Checker) IsReady() bool {
	return c.healthResponse().Status == statusReady
}

func (c *Checker) healthResponse() healthResponse {
	response := healthResponse{
		Status:      statusReady,
		ImageTag:    imageTag(),
		ReadyStates: make(map[string]bool, len(c.Components)),
	}

	for _, component := range c.Components {
		alive := component.IsAlive()
		response.ReadyStates[component.Name()] = alive
		if !alive {
			response.Status = statusNotReady
		}
	}

	if c.Pool != nil {
		response.ChainID = c.Pool.ChainID()
		response.AdmittedEndpoints = c.Pool.Size()
		response.PoolGeneration = c.Pool.Generation()
	}
	return response
}

func imageTag() string {
	if tag := os.Getenv(imageTagEnvVar); tag != "" {
		return tag
	}
	return defaultImageTag
}
