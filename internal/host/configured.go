package host

import (
	"context"
	"encoding/json"
	"net/http"

	"dream/pkg/wire"
)

// ConfiguredService is the Service a configuration document alone can
// produce: no behavior beyond reporting its own config and lifecycle state
// at GET <base>/status. It exists so documents submitted through the
// administrative /services and /load endpoints have something to mount;
// a richer service mounts its own Service implementation directly instead.
type ConfiguredService struct {
	*BaseService
	features *FeatureTable
}

// NewConfiguredService wraps cfg as a mountable Service.
func NewConfiguredService(cfg ServiceConfig) *ConfiguredService {
	name := cfg.SID
	if name == "" {
		name = cfg.Class
	}

	s := &ConfiguredService{BaseService: NewBaseService(name, cfg)}
	s.features = NewFeatureTable()
	s.features.Add(&Feature{Verb: "GET", Pattern: []string{"status"}, Handler: s.handleStatus})
	return s
}

// Start marks the service Running. A ConfiguredService has no external
// process to launch; it is address-and-status-only.
func (s *ConfiguredService) Start(ctx context.Context) error {
	s.UpdateState(Running, HealthHealthy, nil)
	return nil
}

func (s *ConfiguredService) Stop(ctx context.Context) error {
	s.UpdateState(Stopped, HealthUnknown, nil)
	return nil
}

func (s *ConfiguredService) Features() *FeatureTable { return s.features }

type statusDocument struct {
	Name   string        `json:"name"`
	State  State         `json:"state"`
	Health HealthStatus  `json:"health"`
	Config ServiceConfig `json:"config"`
}

func (s *ConfiguredService) handleStatus(req *wire.Request, params map[string]string) *wire.Response {
	body, err := json.Marshal(statusDocument{Name: s.Name(), State: s.State(), Health: s.Health(), Config: s.Config()})
	if err != nil {
		return &wire.Response{Status: http.StatusInternalServerError, Body: wire.EmptyMessage()}
	}
	return &wire.Response{Status: http.StatusOK, Body: wire.NewMessage("application/json", body)}
}
