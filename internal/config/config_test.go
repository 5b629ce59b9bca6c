package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WSURL != "ws://127.0.0.1:8765/ws" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.MQTTPort != 1883 || cfg.MQTTBase != "carebot" {
		t.Errorf("mqtt defaults = %d %q", cfg.MQTTPort, cfg.MQTTBase)
	}
	if cfg.RobotID != "robot_left" {
		t.Errorf("RobotID = %q", cfg.RobotID)
	}
	if cfg.Orientation != OrientationLeft {
		t.Errorf("Orientation = %q", cfg.Orientation)
	}
	if cfg.UpdateInterval() != 200*time.Millisecond {
		t.Errorf("UpdateInterval = %v", cfg.UpdateInterval())
	}
	if cfg.ArmBaud != 1_000_000 {
		t.Errorf("ArmBaud = %d", cfg.ArmBaud)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carebot.json")
	body := `{"ws_url":"ws://backend:9000/ws","robot_id":"robot_right","mqtt_host":"broker.local","update_interval_ms":300}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAREBOT_ROBOT_ID", "robot_left")
	t.Setenv("CAREBOT_MQTT_PORT", "2883")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WSURL != "ws://backend:9000/ws" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.RobotID != "robot_left" {
		t.Errorf("env override lost: RobotID = %q", cfg.RobotID)
	}
	if cfg.MQTTPort != 2883 {
		t.Errorf("MQTTPort = %d", cfg.MQTTPort)
	}
	if cfg.BrokerURL() != "tcp://broker.local:2883" {
		t.Errorf("BrokerURL = %q", cfg.BrokerURL())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad orientation", func(c *Config) { c.Orientation = "upside_down" }},
		{"bad mqtt port", func(c *Config) { c.MQTTPort = 70000 }},
		{"bad qos", func(c *Config) { c.MQTTQoS = 3 }},
		{"negative camera", func(c *Config) { c.CameraIndex = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tt.name)
			}
		})
	}
}

func TestResolveArmPort(t *testing.T) {
	cfg := &Config{RobotID: "robot_right", ArmPortLeft: "/dev/ttyUSB0", ArmPortRight: "/dev/ttyUSB1"}
	if got := cfg.ResolveArmPort(); got != "/dev/ttyUSB1" {
		t.Errorf("right port = %q", got)
	}
	cfg.RobotID = "robot_left"
	if got := cfg.ResolveArmPort(); got != "/dev/ttyUSB0" {
		t.Errorf("left port = %q", got)
	}
	cfg.ArmPort = "/dev/serial/by-path/usb-0:1.2"
	if got := cfg.ResolveArmPort(); got != "/dev/serial/by-path/usb-0:1.2" {
		t.Errorf("explicit port = %q", got)
	}
	if got := (&Config{}).ResolveArmPort(); got != "" {
		t.Errorf("empty config port = %q", got)
	}
}

func TestUpdateIntervalFloor(t *testing.T) {
	cfg := &Config{UpdateIntervalMS: 10}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.UpdateIntervalMS != 50 {
		t.Errorf("floor not applied: %d", cfg.UpdateIntervalMS)
	}
}
