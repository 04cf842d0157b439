// Package host implements the Host & Services model: a URI namespace and a
// mount table of services, each with a lifecycle, a feature table, and a
// config document. The host is itself a registry.Provider, so mounting it
// into the endpoint registry makes every feature of every mounted service
// reachable through ordinary dispatch.
package host

import "strings"

// State is a service's lifecycle state.
type State string

const (
	Initialized State = "Initialized"
	Starting    State = "Starting"
	Running     State = "Running"
	Stopping    State = "Stopping"
	Stopped     State = "Stopped"
	Failed      State = "Failed"
)

// HealthStatus is a service's self-reported health.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "Unknown"
	HealthHealthy   HealthStatus = "Healthy"
	HealthUnhealthy HealthStatus = "Unhealthy"
	HealthChecking  HealthStatus = "Checking"
)

// ServiceConfig is the typed form of the service configuration document
// (§6): class/sid/path identify and address the service, apikey/http-port/
// uri.public/connect-limit are optional transport overrides, and folder
// roots a filesystem-backed service's private storage.
type ServiceConfig struct {
	Class        string `yaml:"class" json:"class"`
	SID          string `yaml:"sid" json:"sid"`
	Path         string `yaml:"path" json:"path"`
	APIKey       string `yaml:"apikey,omitempty" json:"apikey,omitempty"`
	HTTPPort     int    `yaml:"http-port,omitempty" json:"http-port,omitempty"`
	URIPublic    string `yaml:"uri.public,omitempty" json:"uri.public,omitempty"`
	ConnectLimit int    `yaml:"connect-limit,omitempty" json:"connect-limit,omitempty"`
	Folder       string `yaml:"folder,omitempty" json:"folder,omitempty"`
}

// StateChangeCallback is invoked whenever a service's state or health changes.
type StateChangeCallback func(name string, oldState, newState State, health HealthStatus, err error)

// ValidateServiceConfig reports a human-readable description of every
// required field missing from cfg, or "" if cfg is well-formed. Shared by
// the startup-time configuration loader and the administrative /services
// and /load endpoints so both reject the same malformed documents.
func ValidateServiceConfig(cfg ServiceConfig) string {
	var missing []string
	if cfg.Class == "" {
		missing = append(missing, "class")
	}
	if cfg.SID == "" {
		missing = append(missing, "sid")
	}
	if cfg.Path == "" {
		missing = append(missing, "path")
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing required field(s): " + strings.Join(missing, ", ")
}
