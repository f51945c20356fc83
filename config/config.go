// Package config reads the YAML configuration of an lwdelta server.
package config

import (
	"os"
	"time"

	"github.com/drpcorg/lwdelta/model"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("lwdelta: invalid configuration")

var validate = validator.New()

type Listen struct {
	// Websocket is the HTTP address serving the websocket endpoint.
	Websocket string `yaml:"websocket" validate:"omitempty,hostname_port"`
	// Path of the websocket endpoint.
	Path string `yaml:"path" validate:"omitempty,startswith=/"`
	// TCP takes tcp:// or tls:// addresses.
	TCP     string `yaml:"tcp"`
	Metrics string `yaml:"metrics" validate:"omitempty,hostname_port"`
}

type Journal struct {
	// Dir is the pebble directory; without it clients can not reconnect.
	Dir    string `yaml:"dir"`
	MaxLen uint64 `yaml:"max_len"`
	Sync   bool   `yaml:"sync"`
}

type Queue struct {
	Limit   int           `yaml:"limit" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

type Config struct {
	Listen  Listen  `yaml:"listen"`
	Journal Journal `yaml:"journal"`
	Queue   Queue   `yaml:"queue"`
	// Participation credits edits the server makes itself.
	Participation   string        `yaml:"participation"`
	ReconnectWindow time.Duration `yaml:"reconnect_window" validate:"gte=0"`
	LogLevel        string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogJson         bool          `yaml:"log_json"`
	// Languages is a YAML file in the format LoadLanguages reads.
	Languages string `yaml:"languages" validate:"required"`
	// Partitions are created empty at start when missing.
	Partitions []Partition `yaml:"partitions" validate:"dive"`
}

// Partition names a partition root by id and classifier key.
type Partition struct {
	Id         string `yaml:"id" validate:"required"`
	Language   string `yaml:"language" validate:"required"`
	Version    string `yaml:"version" validate:"required"`
	Classifier string `yaml:"classifier" validate:"required"`
}

// Root makes an empty partition root.
func (p Partition) Root(keyed *model.SharedKeyedMap) (*model.Node, error) {
	c, err := keyed.Classifier(model.MetaPointer{Language: p.Language, Version: p.Version, Key: p.Classifier})
	if err != nil {
		return nil, err
	}
	if !c.Partition {
		return nil, errors.Wrapf(ErrInvalidConfig, "%s can not be a partition", c.Meta)
	}
	return model.NewNode(model.NodeId(p.Id), c), nil
}

func (c *Config) SetDefaults() {
	if c.Listen.Websocket == "" && c.Listen.TCP == "" {
		c.Listen.Websocket = "127.0.0.1:8080"
	}
	if c.Listen.Path == "" {
		c.Listen.Path = "/delta"
	}
	if c.Queue.Limit == 0 {
		c.Queue.Limit = 16 << 20
	}
	if c.Queue.Timeout == 0 {
		c.Queue.Timeout = time.Second
	}
	if c.ReconnectWindow == 0 {
		c.ReconnectWindow = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	return nil
}

// Parse reads a configuration, fills in defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}
