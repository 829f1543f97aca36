package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/poseloop/internal/control"
	"github.com/san-kum/poseloop/internal/dynamo"
)

const (
	DefaultStrategy   = "direction"
	DefaultIntegrator = "unicycle"
	DefaultBroker     = "tcp://localhost:1883"
	DefaultClientID   = "poseloop"
	DefaultPoseTopic  = "poseloop/odom"
	DefaultCmdTopic   = "poseloop/cmd_vel"
	DefaultQoS        = 1
	DefaultCANIface   = "can0"
	DefaultCANFrameID = 0x200

	maxStandardCANID = 0x7FF
)

type Config struct {
	Strategy          string       `yaml:"strategy"`
	Integrator        string       `yaml:"integrator"`
	Ts                float64      `yaml:"ts"`
	Duration          float64      `yaml:"duration"`
	Seed              int64        `yaml:"seed"`
	RefPose           dynamo.Pose  `yaml:"ref_pose"`
	StartPose         dynamo.Pose  `yaml:"start_pose"`
	Gains             GainsConfig  `yaml:"gains"`
	Dmin              float64      `yaml:"dmin"`
	RDistance         float64      `yaml:"r_distance"`
	NormalizeApproach bool         `yaml:"normalize_approach"`
	Wheels            WheelsConfig `yaml:"wheels"`
	MQTT              MQTTConfig   `yaml:"mqtt"`
	CAN               CANConfig    `yaml:"can"`
}

type GainsConfig struct {
	Kp float64 `yaml:"kp"`
	Kw float64 `yaml:"kw"`
}

type WheelsConfig struct {
	Radius float64 `yaml:"radius"`
	Axle   float64 `yaml:"axle"`
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
}

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	PoseTopic string `yaml:"pose_topic"`
	CmdTopic  string `yaml:"cmd_topic"`
	QoS       int    `yaml:"qos"`
}

type CANConfig struct {
	Interface string `yaml:"interface"`
	FrameID   uint32 `yaml:"frame_id"`
}

func DefaultConfig() *Config {
	return &Config{
		Strategy:   DefaultStrategy,
		Integrator: DefaultIntegrator,
		Ts:         control.DefaultTs,
		Duration:   control.DefaultDuration,
		RefPose:    control.DefaultRef,
		Gains: GainsConfig{
			Kp: control.DefaultKp,
			Kw: control.DefaultKw,
		},
		Dmin:      control.DefaultDmin,
		RDistance: control.DefaultRDistance,
		Wheels: WheelsConfig{
			Radius: control.DefaultWheelRadius,
			Axle:   control.DefaultAxleLength,
			Left:   control.DefaultWheelSpeed,
			Right:  control.DefaultWheelSpeed,
		},
		MQTT: MQTTConfig{
			Broker:    DefaultBroker,
			ClientID:  DefaultClientID,
			PoseTopic: DefaultPoseTopic,
			CmdTopic:  DefaultCmdTopic,
			QoS:       DefaultQoS,
		},
		CAN: CANConfig{
			Interface: DefaultCANIface,
			FrameID:   DefaultCANFrameID,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	s, err := control.ParseStrategy(c.Strategy)
	if err != nil {
		return err
	}
	if !c.StartPose.IsValid() {
		return fmt.Errorf("start_pose %s: %w", c.StartPose, dynamo.ErrInvalidState)
	}
	if s == control.StrategyWheels {
		err = c.WheelParams().Validate()
	} else {
		err = c.Params().Validate()
	}
	if err != nil {
		return err
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return &dynamo.ConfigError{Field: "mqtt.qos", Value: float64(c.MQTT.QoS), Reason: "must be 0, 1 or 2"}
	}
	if c.CAN.FrameID > maxStandardCANID {
		return &dynamo.ConfigError{Field: "can.frame_id", Value: float64(c.CAN.FrameID), Reason: "must be a standard 11-bit identifier"}
	}
	return nil
}

func (c *Config) StrategyKind() (control.Strategy, error) {
	return control.ParseStrategy(c.Strategy)
}

func (c *Config) Params() control.Params {
	return control.Params{
		Ref:       c.RefPose,
		Kp:        c.Gains.Kp,
		Kw:        c.Gains.Kw,
		Dmin:      c.Dmin,
		RDistance: c.RDistance,
		Duration:  c.Duration,
		Ts:        c.Ts,
	}
}

func (c *Config) WheelParams() control.WheelParams {
	return control.WheelParams{
		Radius:   c.Wheels.Radius,
		Axle:     c.Wheels.Axle,
		Left:     c.Wheels.Left,
		Right:    c.Wheels.Right,
		Duration: c.Duration,
		Ts:       c.Ts,
	}
}

// Clone returns a deep copy. Config holds no reference types, so a value
// copy is enough.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
