// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config decodes ghostd's boot configuration: environment
// variables plus the host/swarm/scheduler YAML files named in the
// external interfaces contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Server holds the top-level boot configuration.
type Server struct {
	Host         string `validate:"required"`
	Port         int    `validate:"required,min=1,max=65535"`
	TapeRoot     string `validate:"required"`
	ConfigDir    string
	DrainTimeout int // seconds
}

// HostConfig maps named external services to URL strings (used by
// POST /proxy-external/{service}).
type HostConfig struct {
	Services map[string]string `yaml:"services"`
}

// SwarmAgent describes one tribunal/swarm participant.
type SwarmAgent struct {
	URL      string   `yaml:"url" validate:"required,url"`
	Skills   []string `yaml:"skills"`
	Priority int      `yaml:"priority"`
	Status   string   `yaml:"status"`
}

// SwarmRouter holds the keyword-routing policy for POST /swarm/route.
type SwarmRouter struct {
	Strategy  string `yaml:"strategy"`
	Fallback  string `yaml:"fallback"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Retry     int    `yaml:"retry"`
}

// SwarmConfig is the decoded swarm config file.
type SwarmConfig struct {
	Agents map[string]SwarmAgent `yaml:"agents"`
	Router SwarmRouter           `yaml:"router"`
}

// DeviceProfile describes the host's compute capability.
type DeviceProfile struct {
	Cores           int  `yaml:"cores"`
	MemoryMB        int  `yaml:"memory_mb"`
	DedicatedGPU    bool `yaml:"dedicated_gpu"`
	IntegratedGPU   bool `yaml:"integrated_gpu"`
}

// Shard is a configured execution target for an inference job.
type Shard struct {
	Engine   string `yaml:"engine" validate:"required"`
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`
	Fallback string `yaml:"fallback"`
}

// SchedulerPolicy defines the thresholds C6 evaluates in order.
type SchedulerPolicy struct {
	CPUThresholdLoad      float64 `yaml:"cpu_threshold_load" validate:"min=0,max=1"`
	PreferGPUForPriority  float64 `yaml:"prefer_gpu_for_priority" validate:"min=0,max=1"`
}

// SchedulerConfig is the decoded scheduler config file.
type SchedulerConfig struct {
	DeviceProfiles map[string]DeviceProfile  `yaml:"device_profiles"`
	Shards         map[string]Shard          `yaml:"shards"`
	Policies       map[string]SchedulerPolicy `yaml:"policies"`
}

var validate = validator.New()

// LoadServer builds the top-level config from environment variables,
// applying the defaults named in the external interfaces contract.
func LoadServer() (Server, error) {
	host := envString("HOST", "localhost")
	port, err := strconv.Atoi(envString("PORT", "3000"))
	if err != nil {
		return Server{}, fmt.Errorf("invalid PORT: %w", err)
	}
	root := envString("GHOST_TAPE_ROOT", "./tapes")
	confDir := envString("GHOST_CONFIG_DIR", "./config")
	drain, _ := strconv.Atoi(envString("GHOST_DRAIN_SECONDS", "15"))

	cfg := Server{Host: host, Port: port, TapeRoot: root, ConfigDir: confDir, DrainTimeout: drain}
	if err := validate.Struct(cfg); err != nil {
		return Server{}, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// LoadHostConfig reads the named-external-services map.
func LoadHostConfig(dir string) (HostConfig, error) {
	var cfg HostConfig
	if err := readYAML(filepath.Join(dir, "host.yaml"), &cfg); err != nil {
		return HostConfig{}, err
	}
	if cfg.Services == nil {
		cfg.Services = map[string]string{}
	}
	return cfg, nil
}

// LoadSwarmConfig reads the agent slate and routing policy.
func LoadSwarmConfig(dir string) (SwarmConfig, error) {
	var cfg SwarmConfig
	if err := readYAML(filepath.Join(dir, "swarm.yaml"), &cfg); err != nil {
		return SwarmConfig{}, err
	}
	for id, agent := range cfg.Agents {
		if err := validate.Struct(agent); err != nil {
			return SwarmConfig{}, fmt.Errorf("swarm agent %q: %w", id, err)
		}
	}
	return cfg, nil
}

// LoadSchedulerConfig reads device profiles, shards, and policies.
func LoadSchedulerConfig(dir string) (SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := readYAML(filepath.Join(dir, "scheduler.yaml"), &cfg); err != nil {
		return SchedulerConfig{}, err
	}
	for id, shard := range cfg.Shards {
		if err := validate.Struct(shard); err != nil {
			return SchedulerConfig{}, fmt.Errorf("shard %q: %w", id, err)
		}
	}
	return cfg, nil
}

// readYAML decodes path into out. A missing file is not an error — every
// config file is optional and defaults to its zero value.
func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
