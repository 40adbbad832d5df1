package application

import (
	"io"
	"time"

	"github.com/diwise/water-network/internal/pkg/application/events"
	"github.com/diwise/water-network/internal/pkg/application/gatewalls"
	yaml "gopkg.in/yaml.v2"
)

const DefaultSimulationInterval time.Duration = 5 * time.Second

type SimulationConfig struct {
	Interval     time.Duration `yaml:"interval"`
	BatteryDrain float64       `yaml:"batteryDrain"`
}

type Config struct {
	Simulation    SimulationConfig      `yaml:"simulation"`
	Notifications []events.Notification `yaml:"notifications"`
}

func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Interval:     DefaultSimulationInterval,
			BatteryDrain: gatewalls.DefaultBatteryDrain,
		},
	}
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err == nil {
		if cfg.Simulation.Interval <= 0 {
			cfg.Simulation.Interval = DefaultSimulationInterval
		}
		if cfg.Simulation.BatteryDrain <= 0 {
			cfg.Simulation.BatteryDrain = gatewalls.DefaultBatteryDrain
		}
		return cfg, nil
	} else {
		return nil, err
	}
}

func (c *Config) EventsConfig() *events.Config {
	return &events.Config{Notifications: c.Notifications}
}
