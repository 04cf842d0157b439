package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"dream/internal/host"
	"dream/pkg/logging"
)

const serviceConfigExt = ".yaml"

// ConfigurationLoader resolves service configuration documents from a
// directory. It never fails on the first bad file: every document is
// attempted, and every failure is collected into a ConfigurationErrorCollection
// alongside the documents that did parse.
type ConfigurationLoader struct {
	dir string
}

// NewConfigurationLoader returns a loader rooted at dir.
func NewConfigurationLoader(dir string) *ConfigurationLoader {
	return &ConfigurationLoader{dir: dir}
}

// Load reads every *.yaml file directly under the loader's directory,
// decodes it as a host.ServiceConfig, and validates it. Documents that fail
// to read, parse, or validate are reported in the returned collection; the
// first return value holds only the documents that succeeded.
func (l *ConfigurationLoader) Load() ([]host.ServiceConfig, *ConfigurationErrorCollection) {
	errs := NewConfigurationErrorCollection()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "no config directory at %s, nothing to load", l.dir)
			return nil, errs
		}
		errs.Add(NewConfigurationError(l.dir, filepath.Base(l.dir), "service", "directory", "io", err.Error()))
		return nil, errs
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), serviceConfigExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var configs []host.ServiceConfig
	for _, name := range names {
		path := filepath.Join(l.dir, name)
		cfg, loadErr := l.loadOne(path)
		if loadErr != nil {
			errs.Add(*loadErr)
			continue
		}
		configs = append(configs, cfg)
	}

	logging.Info("ConfigLoader", "loaded %d service configs from %s (%d errors)", len(configs), l.dir, errs.Count())
	return configs, errs
}

func (l *ConfigurationLoader) loadOne(path string) (host.ServiceConfig, *ConfigurationError) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		e := NewConfigurationError(path, name, "service", "service", "io", err.Error())
		return host.ServiceConfig{}, &e
	}

	var cfg host.ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		e := NewConfigurationError(path, name, "service", "service", "parse", err.Error())
		return host.ServiceConfig{}, &e
	}

	if msg := host.ValidateServiceConfig(cfg); msg != "" {
		e := NewConfigurationErrorWithDetails(path, name, "service", "service", "validation", msg, "", nil)
		return host.ServiceConfig{}, &e
	}

	return cfg, nil
}
