// Package config loads vehicle parameters, controller gains and runtime
// settings from YAML files, GEOCONTROL_* environment variables and flags.
package config

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
)

// Config is the complete on-disk configuration.
type Config struct {
	Vehicle    VehicleConfig    `mapstructure:"vehicle" yaml:"vehicle"`
	Gains      GainsConfig      `mapstructure:"gains" yaml:"gains"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
}

type VehicleConfig struct {
	Mass    float64       `mapstructure:"mass" yaml:"mass"`
	Gravity float64       `mapstructure:"gravity" yaml:"gravity"`
	Inertia []float64     `mapstructure:"inertia" yaml:"inertia,flow"` // 3 diagonal or 9 row-major entries
	Rotors  []RotorConfig `mapstructure:"rotors" yaml:"rotors"`
}

type RotorConfig struct {
	Angle          float64 `mapstructure:"angle" yaml:"angle"`
	ArmLength      float64 `mapstructure:"arm_length" yaml:"arm_length"`
	ForceConstant  float64 `mapstructure:"force_constant" yaml:"force_constant"`
	MomentConstant float64 `mapstructure:"moment_constant" yaml:"moment_constant"`
	Direction      int     `mapstructure:"direction" yaml:"direction"`
}

type GainsConfig struct {
	Position    []float64 `mapstructure:"position" yaml:"position,flow"`
	Velocity    []float64 `mapstructure:"velocity" yaml:"velocity,flow"`
	Attitude    []float64 `mapstructure:"attitude" yaml:"attitude,flow"`
	AngularRate []float64 `mapstructure:"angular_rate" yaml:"angular_rate,flow"`
}

type ControllerConfig struct {
	Timestep           float64 `mapstructure:"timestep" yaml:"timestep"`
	MeasuredTimestep   bool    `mapstructure:"measured_timestep" yaml:"measured_timestep"`
	MinHeadingSpeed    float64 `mapstructure:"min_heading_speed" yaml:"min_heading_speed"`
	DefaultYaw         float64 `mapstructure:"default_yaw" yaml:"default_yaw"`
	MinForce           float64 `mapstructure:"min_force" yaml:"min_force"`
	MaxConditionNumber float64 `mapstructure:"max_condition_number" yaml:"max_condition_number"`
}

type TelemetryConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`                 // Listen address of the telemetry server
	URL         string `mapstructure:"url" yaml:"url"`                   // Room URL publishers dial, empty to disable
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"` // Prometheus listen address, empty to disable
}

// Default returns a Firefly-like hexacopter with the inertia estimate and
// gains the controller was tuned with.
func Default() *Config {
	rotors := make([]RotorConfig, 6)
	for i := range rotors {
		rotors[i] = RotorConfig{
			Angle:          math.Pi/6 + float64(i)*math.Pi/3,
			ArmLength:      0.215,
			ForceConstant:  8.54858e-06,
			MomentConstant: 1.6e-02,
			Direction:      1 - 2*(i%2),
		}
	}
	return &Config{
		Vehicle: VehicleConfig{
			Mass:    1.56779,
			Gravity: 9.81,
			Inertia: []float64{0.034, 0.045, 0.098},
			Rotors:  rotors,
		},
		Gains: GainsConfig{
			Position:    []float64{6, 6, 6},
			Velocity:    []float64{4.7, 4.7, 4.7},
			Attitude:    []float64{3, 3, 0.15},
			AngularRate: []float64{0.52, 0.52, 0.18},
		},
		Controller: ControllerConfig{
			Timestep:           geocontrol.DefaultTimestep,
			MinHeadingSpeed:    geocontrol.DefaultMinHeadingSpeed,
			MinForce:           geocontrol.DefaultMinForce,
			MaxConditionNumber: geocontrol.DefaultMaxConditionNumber,
		},
		Telemetry: TelemetryConfig{
			Addr: ":8000",
		},
	}
}

func vec3(name string, a []float64) (mgl64.Vec3, error) {
	if len(a) != 3 {
		return mgl64.Vec3{}, errors.Errorf("%s needs 3 entries, has %d", name, len(a))
	}
	return mgl64.Vec3{a[0], a[1], a[2]}, nil
}

// VehicleParameters converts the vehicle section.
func (c *Config) VehicleParameters() (p geocontrol.VehicleParameters, err error) {
	p.Mass = c.Vehicle.Mass
	p.Gravity = c.Vehicle.Gravity

	switch j := c.Vehicle.Inertia; len(j) {
	case 3:
		p.Inertia = mgl64.Diag3(mgl64.Vec3{j[0], j[1], j[2]})
	case 9:
		p.Inertia = mgl64.Mat3FromRows(
			mgl64.Vec3{j[0], j[1], j[2]},
			mgl64.Vec3{j[3], j[4], j[5]},
			mgl64.Vec3{j[6], j[7], j[8]},
		)
	default:
		return p, errors.Errorf("vehicle.inertia needs 3 or 9 entries, has %d", len(j))
	}

	p.Rotors = make([]geocontrol.Rotor, len(c.Vehicle.Rotors))
	for i, r := range c.Vehicle.Rotors {
		if r.Direction != 1 && r.Direction != -1 {
			return p, errors.Errorf("vehicle.rotors[%d].direction must be 1 or -1, is %d", i, r.Direction)
		}
		p.Rotors[i] = geocontrol.Rotor{
			Angle:          r.Angle,
			ArmLength:      r.ArmLength,
			ForceConstant:  r.ForceConstant,
			MomentConstant: r.MomentConstant,
			Direction:      r.Direction,
		}
	}
	return p, nil
}

// ControlGains converts the gains section.
func (c *Config) ControlGains() (k geocontrol.Gains, err error) {
	if k.Position, err = vec3("gains.position", c.Gains.Position); err != nil {
		return k, err
	}
	if k.Velocity, err = vec3("gains.velocity", c.Gains.Velocity); err != nil {
		return k, err
	}
	if k.Attitude, err = vec3("gains.attitude", c.Gains.Attitude); err != nil {
		return k, err
	}
	k.AngularRate, err = vec3("gains.angular_rate", c.Gains.AngularRate)
	return k, err
}

// Settings converts the controller section.
func (c *Config) Settings() geocontrol.Settings {
	return geocontrol.Settings{
		Timestep:           c.Controller.Timestep,
		MeasuredTimestep:   c.Controller.MeasuredTimestep,
		MinHeadingSpeed:    c.Controller.MinHeadingSpeed,
		DefaultYaw:         c.Controller.DefaultYaw,
		MinForce:           c.Controller.MinForce,
		MaxConditionNumber: c.Controller.MaxConditionNumber,
	}
}

// Validate converts every section and runs the controller's own checks,
// so that a bad file is rejected before anything is started.
func Validate(c *Config) error {
	p, err := c.VehicleParameters()
	if err != nil {
		return err
	}
	k, err := c.ControlGains()
	if err != nil {
		return err
	}
	_, err = geocontrol.NewConfiguration(p, k, c.Settings())
	return err
}
