// Package config loads agent configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const DefaultConfigFile = "carebot.json"

// Orientation selects the pose table handedness for a mounted arm.
type Orientation string

const (
	OrientationLeft  Orientation = "left"
	OrientationRight Orientation = "right"
)

// Config holds the agent configuration.
type Config struct {
	WSURL       string      `json:"ws_url"`
	MQTTHost    string      `json:"mqtt_host"`
	MQTTPort    int         `json:"mqtt_port"`
	MQTTBase    string      `json:"mqtt_base"`
	MQTTQoS     int         `json:"mqtt_qos"`
	RobotID     string      `json:"robot_id"`
	Orientation Orientation `json:"orientation"`

	// ArmPort is the serial device of the arm bus. Empty means
	// auto-discover. ArmPortLeft/ArmPortRight map a port per robot
	// identity when one config file serves both arms.
	ArmPort      string `json:"arm_port"`
	ArmPortLeft  string `json:"arm_port_left"`
	ArmPortRight string `json:"arm_port_right"`
	ArmBaud      int    `json:"arm_baud"`

	CameraIndex int    `json:"camera_index"`
	CascadePath string `json:"cascade_path"`

	// UpdateIntervalMS drives the telemetry base rate and the tracker
	// status cadence.
	UpdateIntervalMS int `json:"update_interval_ms"`
}

// Load reads the config file at path (DefaultConfigFile when empty),
// applies environment overrides, and validates. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CAREBOT_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("CAREBOT_MQTT_HOST"); v != "" {
		c.MQTTHost = v
	}
	if v := os.Getenv("CAREBOT_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = p
		}
	}
	if v := os.Getenv("CAREBOT_MQTT_BASE"); v != "" {
		c.MQTTBase = v
	}
	if v := os.Getenv("CAREBOT_ROBOT_ID"); v != "" {
		c.RobotID = v
	}
	if v := os.Getenv("CAREBOT_ORIENTATION"); v != "" {
		c.Orientation = Orientation(v)
	}
	if v := os.Getenv("CAREBOT_ARM_PORT"); v != "" {
		c.ArmPort = v
	}
	if v := os.Getenv("CAREBOT_CAMERA_INDEX"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.CameraIndex = i
		}
	}
	if v := os.Getenv("CAREBOT_CASCADE_PATH"); v != "" {
		c.CascadePath = v
	}
}

// Validate applies defaults and rejects values outside their ranges.
func (c *Config) Validate() error {
	if c.WSURL == "" {
		c.WSURL = "ws://127.0.0.1:8765/ws"
	}
	if c.MQTTHost == "" {
		c.MQTTHost = "127.0.0.1"
	}
	if c.MQTTPort == 0 {
		c.MQTTPort = 1883
	}
	if c.MQTTPort < 1 || c.MQTTPort > 65535 {
		return fmt.Errorf("mqtt_port out of range: %d", c.MQTTPort)
	}
	if c.MQTTBase == "" {
		c.MQTTBase = "carebot"
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt_qos out of range: %d", c.MQTTQoS)
	}
	if c.RobotID == "" {
		c.RobotID = "robot_left"
	}
	switch c.Orientation {
	case "":
		c.Orientation = OrientationLeft
	case OrientationLeft, OrientationRight:
	default:
		return fmt.Errorf("orientation must be left or right, got %q", c.Orientation)
	}
	if c.ArmBaud == 0 {
		c.ArmBaud = 1_000_000
	}
	if c.CameraIndex < 0 {
		return fmt.Errorf("camera_index out of range: %d", c.CameraIndex)
	}
	if c.UpdateIntervalMS <= 0 {
		c.UpdateIntervalMS = 200
	}
	if c.UpdateIntervalMS < 50 {
		c.UpdateIntervalMS = 50
	}
	return nil
}

// ResolveArmPort returns the serial port for this robot identity, or ""
// when discovery should run.
func (c *Config) ResolveArmPort() string {
	if c.ArmPort != "" {
		return c.ArmPort
	}
	if c.RobotID == "robot_right" && c.ArmPortRight != "" {
		return c.ArmPortRight
	}
	if c.ArmPortLeft != "" && c.RobotID != "robot_right" {
		return c.ArmPortLeft
	}
	return ""
}

// UpdateInterval returns UpdateIntervalMS as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

// BrokerURL returns the MQTT broker address in paho URL form.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTHost, c.MQTTPort)
}
