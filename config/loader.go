package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. GEOCONTROL_VEHICLE_MASS.
const EnvPrefix = "GEOCONTROL"

// flagBindings maps viper keys to pflag names.
var flagBindings = map[string]string{
	"controller.timestep":          "timestep",
	"controller.measured_timestep": "measured-timestep",
	"telemetry.addr":               "addr",
	"telemetry.url":                "publish",
	"telemetry.metrics_addr":       "metrics-addr",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *flag.FlagSet) {
	def := Default()
	fs.String("config", "", "YAML configuration file")
	fs.Float64("timestep", def.Controller.Timestep, "Nominal control period in seconds")
	fs.Bool("measured-timestep", def.Controller.MeasuredTimestep, "Use state timestamps for the control period")
	fs.String("addr", def.Telemetry.Addr, "Telemetry server listen address")
	fs.String("publish", def.Telemetry.URL, "Telemetry room URL to publish to, e.g. ws://localhost:8000/geocontrol")
	fs.String("metrics-addr", def.Telemetry.MetricsAddr, "Prometheus metrics listen address")
	fs.Bool("debug", false, "Development logging")
}

// Load resolves the configuration.
// Precedence: flags > env > file > defaults.
// path may be empty and fs may be nil.
func Load(path string, fs *flag.FlagSet) (*Config, error) {
	def, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errors.Wrap(err, "encoding defaults")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(def)); err != nil {
		return nil, errors.Wrap(err, "reading defaults")
	}

	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagBindings {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "binding flag %s", name)
				}
			}
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path as YAML.
func WriteDefault(path string) error {
	b, err := yaml.Marshal(Default())
	if err != nil {
		return errors.Wrap(err, "encoding defaults")
	}
	return errors.Wrapf(os.WriteFile(path, b, 0644), "writing %s", path)
}
