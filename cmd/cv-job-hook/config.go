package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "CV"

type Config struct {
	APIServer      string   `envconfig:"CV_API_SERVER"       yaml:"apiServer"`
	APIToken       string   `envconfig:"CV_API_TOKEN"        yaml:"apiToken"`
	LogFile        string   `envconfig:"CV_LOG_FILE"         yaml:"logFile"        default:"/var/log/slurm/cvjob.log"`
	LogLevel       string   `envconfig:"CV_LOG_LEVEL"        yaml:"logLevel"       default:"info"`
	JobNameExclude string   `envconfig:"CV_JOB_NAME_EXCLUDE" yaml:"jobNameExclude" default:"^cv-"`
	Partitions     []string `envconfig:"CV_PARTITIONS"       yaml:"partitions"`
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

// Configured reports whether the CloudVision API settings are present. The
// hook treats an unconfigured API as "do nothing" rather than an error.
func (c *Config) Configured() bool {
	return c.APIServer != "" && c.APIToken != ""
}
