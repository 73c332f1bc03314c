package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the settings file model. Every field has a default, so an
// absent file yields a runnable configuration.
type Config struct {
	DataDir string `yaml:"dataDir"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Database struct {
		MapSize int `yaml:"mapSize"`
	} `yaml:"database"`

	DNS struct {
		NameServers         []string `yaml:"nameServers"`
		BrowsingDomains     []string `yaml:"browsingDomains"`
		RegistrationDomains []string `yaml:"registrationDomains"`
		Hostname            string   `yaml:"hostname"`
		TimeoutMs           int      `yaml:"timeoutMs"`
		KeepOpenForMs       int      `yaml:"keepOpenForMs"`
		TTL                 uint32   `yaml:"ttl"`

		TSIG struct {
			KeyName   string `yaml:"keyName"`
			Algorithm string `yaml:"algorithm"`
			Secret    string `yaml:"secret"` // base64
			Fudge     int    `yaml:"fudge"`
		} `yaml:"tsig"`
	} `yaml:"dns"`

	Service struct {
		Name     string            `yaml:"name"`
		Type     string            `yaml:"type"`
		Port     uint16            `yaml:"port"`
		Metadata map[string]string `yaml:"metadata"`
	} `yaml:"service"`

	API struct {
		ListenAddr string `yaml:"listenAddr"`
	} `yaml:"api"`
}

// Load reads a YAML settings file and applies defaults. A missing file is
// not an error; the defaults stand alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./confsys-data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DNS.TimeoutMs <= 0 {
		c.DNS.TimeoutMs = 10000
	}
	if c.DNS.KeepOpenForMs <= 0 {
		c.DNS.KeepOpenForMs = 3000
	}
	if c.DNS.TSIG.Fudge == 0 {
		c.DNS.TSIG.Fudge = 300
	}
	if c.Service.Name == "" {
		c.Service.Name = "configuration"
	}
	if c.Service.Type == "" {
		c.Service.Type = "_http._tcp"
	}
	if c.Service.Port == 0 {
		c.Service.Port = 8080
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}
}

// TSIGSecret decodes the configured key material.
func (c *Config) TSIGSecret() ([]byte, error) {
	if c.DNS.TSIG.Secret == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.DNS.TSIG.Secret)
	if err != nil {
		return nil, fmt.Errorf("config: tsig secret is not base64: %w", err)
	}
	return key, nil
}
