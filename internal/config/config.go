// Package config loads Registrar and Node configuration from an optional
// YAML file with environment variable overrides, mirroring the layered
// getenv/mustGetenv pattern the rest of this codebase's ancestry uses for
// its binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Registrar holds the settings for the cmd/registrar binary.
type Registrar struct {
	Listen           string        `yaml:"listen"`
	NetworkDelay     time.Duration `yaml:"network_delay"`
	ElectionTimeout  time.Duration `yaml:"election_timeout"`
}

// Node holds the settings for the cmd/node binary.
type Node struct {
	UID             int           `yaml:"uid"`
	Listen          string        `yaml:"listen"`
	Addr            string        `yaml:"addr"`
	RegistrarAddr   string        `yaml:"registrar_addr"`
	NetworkDelay    time.Duration `yaml:"network_delay"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	HeartbeatPeriod time.Duration `yaml:"heartbeat_period"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	MaxMissedBeats  int           `yaml:"max_missed_beats"`
	ElectionTimeoutDur time.Duration `yaml:"election_timeout"`
	MaxElectionRounds  int           `yaml:"max_rounds"`
}

// ElectionTimeout returns the configured per-round election deadline.
func (n Node) ElectionTimeout() time.Duration { return n.ElectionTimeoutDur }

// MaxRounds returns the configured election round budget.
func (n Node) MaxRounds() int { return n.MaxElectionRounds }

// defaultNode returns the built-in node settings: a 500ms network delay,
// 15 forwarding attempts 1.5s apart, a 5s heartbeat with a 2s probe
// timeout, and a 60s election timeout with a budget of 5 rounds.
func defaultNode() Node {
	return Node{
		Listen:             ":8081",
		Addr:               "http://127.0.0.1:8081",
		RegistrarAddr:      "http://127.0.0.1:1099",
		NetworkDelay:       500 * time.Millisecond,
		RetryAttempts:      15,
		RetryDelay:         1500 * time.Millisecond,
		HeartbeatPeriod:    5 * time.Second,
		ProbeTimeout:       2 * time.Second,
		MaxMissedBeats:     3,
		ElectionTimeoutDur: 60 * time.Second,
		MaxElectionRounds:  5,
	}
}

func defaultRegistrar() Registrar {
	return Registrar{
		Listen:          ":1099",
		NetworkDelay:    0,
		ElectionTimeout: 30 * time.Second,
	}
}

// LoadNode reads Node config from path if it exists, applying defaults for
// anything unset, then lets environment variables override the result.
func LoadNode(path string) (Node, error) {
	cfg := defaultNode()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Node{}, err
		}
	}
	applyNodeEnv(&cfg)
	if cfg.UID == 0 {
		return Node{}, fmt.Errorf("config: node uid is required (set uid in file or NODE_UID env)")
	}
	return cfg, nil
}

// LoadRegistrar reads Registrar config from path if it exists, applying
// defaults for anything unset, then environment overrides.
func LoadRegistrar(path string) (Registrar, error) {
	cfg := defaultRegistrar()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Registrar{}, err
		}
	}
	applyRegistrarEnv(&cfg)
	return cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyNodeEnv(cfg *Node) {
	if v := os.Getenv("NODE_UID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UID = n
		}
	}
	getenv("NODE_LISTEN", &cfg.Listen)
	getenv("NODE_ADDR", &cfg.Addr)
	getenv("REGISTRAR_ADDR", &cfg.RegistrarAddr)
	getenvDuration("NODE_NETWORK_DELAY", &cfg.NetworkDelay)
	getenvDuration("NODE_RETRY_DELAY", &cfg.RetryDelay)
	getenvDuration("NODE_HEARTBEAT_PERIOD", &cfg.HeartbeatPeriod)
	getenvDuration("NODE_PROBE_TIMEOUT", &cfg.ProbeTimeout)
	getenvInt("NODE_RETRY_ATTEMPTS", &cfg.RetryAttempts)
	getenvInt("NODE_MAX_MISSED_BEATS", &cfg.MaxMissedBeats)
	getenvDuration("NODE_ELECTION_TIMEOUT", &cfg.ElectionTimeoutDur)
	getenvInt("NODE_MAX_ROUNDS", &cfg.MaxElectionRounds)
}

func applyRegistrarEnv(cfg *Registrar) {
	getenv("REGISTRAR_LISTEN", &cfg.Listen)
	getenvDuration("REGISTRAR_NETWORK_DELAY", &cfg.NetworkDelay)
	getenvDuration("REGISTRAR_ELECTION_TIMEOUT", &cfg.ElectionTimeout)
}

func getenv(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getenvInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func getenvDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
