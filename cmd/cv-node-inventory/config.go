package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "CV"

type Config struct {
	APIServer        string `envconfig:"CV_API_SERVER"         yaml:"apiServer"`
	APIToken         string `envconfig:"CV_API_TOKEN"          yaml:"apiToken"`
	IfaceNameRegex   string `envconfig:"CV_IFACE_NAME_REGEX"   yaml:"ifaceNameRegex"   default:"^(eth|eno|ens|enp|em).*"`
	DiscoveryJobName string `envconfig:"CV_DISCOVERY_JOB_NAME" yaml:"discoveryJobName" default:"cv-interface-discovery"`
	DiscoveryCommand string `envconfig:"CV_DISCOVERY_COMMAND"  yaml:"discoveryCommand" default:"cv-interface-discovery"`
}

// LoadConfig reads the optional YAML config file named by CV_CONFIG_FILE and
// then applies CV_* environment variable overrides.
func LoadConfig() (Config, error) {
	var c Config
	if path := os.Getenv(envVarPrefix + "_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return c, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return c, fmt.Errorf("parsing environment variables: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.APIServer == "" {
		return errors.New("missing required config: CV_API_SERVER")
	}
	if c.APIToken == "" {
		return errors.New("missing required config: CV_API_TOKEN")
	}
	return nil
}
