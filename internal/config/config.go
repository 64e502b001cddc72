// Package config loads the wall configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmastrac/pi-frame/internal/source"
)

// ErrInvalid wraps every configuration problem. Invalid configuration is
// fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultSink          = "fbdevsink"
	DefaultDisplayWidth  = 1280
	DefaultDisplayHeight = 800
	DefaultGrid          = 2

	DefaultMQTTTopicPrefix = "pi-frame"
)

// Config is the complete wall configuration.
type Config struct {
	Display  DisplayConfig  `yaml:"display"`
	Grid     GridConfig     `yaml:"grid"`
	Clock    ClockConfig    `yaml:"clock"`
	RTSP     RTSPConfig     `yaml:"rtsp"`
	Fallback FallbackConfig `yaml:"fallback"`
	Status   StatusConfig   `yaml:"status"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
	Sources  []SourceConfig `yaml:"sources"`

	// Dir is the directory relative image paths resolve against.
	Dir string `yaml:"-"`
}

// DisplayConfig selects the video sink and output resolution.
type DisplayConfig struct {
	Sink   string `yaml:"sink"`   // fbdevsink, kmssink, autovideosink, ...
	Device string `yaml:"device"` // e.g. /dev/fb0; empty uses the sink default
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// GridConfig is the number of cells across and down.
type GridConfig struct {
	Horizontal int `yaml:"horizontal"`
	Vertical   int `yaml:"vertical"`
}

// ClockConfig enables the clock overlay when Format is set.
type ClockConfig struct {
	Format string `yaml:"format"` // strftime format
}

// RTSPConfig tunes every RTSP source.
type RTSPConfig struct {
	Decoder string        `yaml:"decoder"`
	Latency time.Duration `yaml:"latency"`
	Timeout time.Duration `yaml:"timeout"` // decode watchdog
}

// FallbackConfig controls the per-cell stale-stream placeholder.
type FallbackConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
	Text    string        `yaml:"text"`
	Pattern string        `yaml:"pattern"`
}

// StatusConfig configures the HTTP status server. An empty Listen disables it.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// MQTTConfig configures publishing of source state. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // host:port or tcp://, ssl://, ws:// URL
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Encoding    string `yaml:"encoding"` // json (default) or msgpack
	QoS         int    `yaml:"qos"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig is one cell. Exactly one of RTSP, Pattern and Image is set.
type SourceConfig struct {
	Description string       `yaml:"description"`
	RTSP        *RTSPSource  `yaml:"rtsp,omitempty"`
	Pattern     string       `yaml:"pattern,omitempty"`
	Image       *ImageSource `yaml:"image,omitempty"`
}

// RTSPSource is a network camera.
type RTSPSource struct {
	URL   string `yaml:"url"`
	Scale string `yaml:"scale"` // fit, crop or scale
}

// ImageSource is a still image, optionally pre-scaled to Size.
type ImageSource struct {
	Path string      `yaml:"path"`
	Size *SizeConfig `yaml:"size,omitempty"`
}

// SizeConfig is a pixel size.
type SizeConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes a YAML document, applies defaults and validates it.
// Relative image paths resolve against dir.
func Parse(data []byte, dir string) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w: %w", ErrInvalid, err)
	}
	cfg.Dir = dir
	cfg.ApplyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills omitted settings.
func (c *Config) ApplyDefaults() {
	if c.Display.Sink == "" {
		c.Display.Sink = DefaultSink
	}
	if c.Display.Width == 0 {
		c.Display.Width = DefaultDisplayWidth
	}
	if c.Display.Height == 0 {
		c.Display.Height = DefaultDisplayHeight
	}
	if c.Grid.Horizontal == 0 {
		c.Grid.Horizontal = DefaultGrid
	}
	if c.Grid.Vertical == 0 {
		c.Grid.Vertical = DefaultGrid
	}
	if c.RTSP.Decoder == "" {
		c.RTSP.Decoder = source.DefaultDecoder
	}
	if c.RTSP.Latency == 0 {
		c.RTSP.Latency = source.DefaultRTSPLatency
	}
	if c.RTSP.Timeout == 0 {
		c.RTSP.Timeout = source.DefaultRTSPTimeout
	}
	if c.Fallback.Timeout == 0 {
		c.Fallback.Timeout = source.DefaultFallbackTimeout
	}
	if c.Fallback.Text == "" {
		c.Fallback.Text = source.DefaultFallbackText
	}
	if c.Fallback.Pattern == "" {
		c.Fallback.Pattern = source.DefaultFallbackPattern
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
		}
		if c.MQTT.Encoding == "" {
			c.MQTT.Encoding = "json"
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = DefaultMQTTTopicPrefix
			if host, err := os.Hostname(); err == nil && host != "" {
				c.MQTT.ClientID += "-" + host
			}
		}
	}
}

// ResolvePath returns p made absolute against the config directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Specs converts the configured sources into source specs, in slot order.
// The configuration must be valid.
func (c *Config) Specs() ([]source.Spec, error) {
	specs := make([]source.Spec, 0, len(c.Sources))
	for i, s := range c.Sources {
		spec, err := c.spec(s)
		if err != nil {
			return nil, fmt.Errorf("config: sources[%d]: %w: %w", i, ErrInvalid, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (c *Config) spec(s SourceConfig) (source.Spec, error) {
	spec := source.Spec{Description: s.Description}
	switch {
	case s.RTSP != nil:
		mode, err := source.ParseScaleMode(s.RTSP.Scale)
		if err != nil {
			return source.Spec{}, err
		}
		spec.Kind = source.RTSP{URL: s.RTSP.URL, Scale: mode}
	case s.Pattern != "":
		spec.Kind = source.Pattern{Name: s.Pattern}
	case s.Image != nil:
		img := source.Image{Path: c.ResolvePath(s.Image.Path)}
		if s.Image.Size != nil {
			img.Size = &source.Size{Width: s.Image.Size.Width, Height: s.Image.Size.Height}
		}
		spec.Kind = img
	default:
		return source.Spec{}, errors.New("no source kind")
	}
	return spec, nil
}

// RTSPOptions returns the planner options for RTSP sources.
func (c *Config) RTSPOptions() source.RTSPOptions {
	return source.RTSPOptions{
		Decoder: c.RTSP.Decoder,
		Latency: c.RTSP.Latency,
		Timeout: c.RTSP.Timeout,
	}
}

// FallbackOptions returns the placeholder options.
func (c *Config) FallbackOptions() source.FallbackOptions {
	return source.FallbackOptions{
		Timeout: c.Fallback.Timeout,
		Text:    c.Fallback.Text,
		Pattern: c.Fallback.Pattern,
	}
}
