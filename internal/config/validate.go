package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/mmastrac/pi-frame/internal/source"
)

// Validate checks cfg and reports every problem found, wrapped in
// ErrInvalid.
func Validate(cfg *Config) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if cfg.Display.Width < 1 || cfg.Display.Height < 1 {
		add("display size %dx%d must be positive", cfg.Display.Width, cfg.Display.Height)
	}
	if cfg.Grid.Horizontal < 1 || cfg.Grid.Vertical < 1 {
		add("grid %dx%d must be at least 1x1", cfg.Grid.Horizontal, cfg.Grid.Vertical)
	} else if cfg.Display.Width >= 1 && cfg.Display.Height >= 1 &&
		(cfg.Display.Width < cfg.Grid.Horizontal || cfg.Display.Height < cfg.Grid.Vertical) {
		add("grid %dx%d does not fit display %dx%d",
			cfg.Grid.Horizontal, cfg.Grid.Vertical, cfg.Display.Width, cfg.Display.Height)
	}

	cells := cfg.Grid.Horizontal * cfg.Grid.Vertical
	if len(cfg.Sources) == 0 {
		add("no sources configured")
	}
	if cells > 0 && len(cfg.Sources) > cells {
		add("%d sources do not fit a %dx%d grid", len(cfg.Sources), cfg.Grid.Horizontal, cfg.Grid.Vertical)
	}

	if cfg.RTSP.Latency < 0 || cfg.RTSP.Timeout < 0 {
		add("rtsp latency and timeout must not be negative")
	}
	if cfg.Fallback.Timeout < 0 {
		add("fallback.timeout must not be negative")
	}
	if cfg.Fallback.Enabled && !source.ValidPattern(cfg.Fallback.Pattern) {
		add("fallback.pattern %q is not a known pattern", cfg.Fallback.Pattern)
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Encoding != "json" && cfg.MQTT.Encoding != "msgpack" {
			add("mqtt.encoding %q must be json or msgpack", cfg.MQTT.Encoding)
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			add("mqtt.qos %d must be 0, 1 or 2", cfg.MQTT.QoS)
		}
		if strings.Contains(cfg.MQTT.TopicPrefix, "+") || strings.Contains(cfg.MQTT.TopicPrefix, "#") {
			add("mqtt.topic_prefix %q must not contain wildcards", cfg.MQTT.TopicPrefix)
		}
	}

	for i, s := range cfg.Sources {
		if err := validateSource(cfg, s); err != nil {
			problems = append(problems, fmt.Errorf("sources[%d]: %w", i, err))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w: %w", ErrInvalid, errors.Join(problems...))
}

func validateSource(cfg *Config, s SourceConfig) error {
	kinds := 0
	if s.RTSP != nil {
		kinds++
	}
	if s.Pattern != "" {
		kinds++
	}
	if s.Image != nil {
		kinds++
	}
	switch kinds {
	case 0:
		return errors.New("one of rtsp, pattern or image is required")
	case 1:
	default:
		return errors.New("only one of rtsp, pattern or image may be set")
	}

	switch {
	case s.RTSP != nil:
		return validateRTSP(s.RTSP)
	case s.Pattern != "":
		if !source.ValidPattern(s.Pattern) {
			return fmt.Errorf("unknown pattern %q", s.Pattern)
		}
		return nil
	default:
		return validateImage(cfg, s.Image)
	}
}

func validateRTSP(r *RTSPSource) error {
	if r.URL == "" {
		return errors.New("rtsp.url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("rtsp.url: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "rtsp" && scheme != "rtsps" {
		return fmt.Errorf("rtsp.url scheme %q is not rtsp", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("rtsp.url has no host")
	}
	if r.Scale == "" {
		return errors.New("rtsp.scale is required: fit, crop or scale")
	}
	if _, err := source.ParseScaleMode(r.Scale); err != nil {
		return fmt.Errorf("rtsp.scale: %w", err)
	}
	return nil
}

func validateImage(cfg *Config, img *ImageSource) error {
	if img.Path == "" {
		return errors.New("image.path is required")
	}
	if sz := img.Size; sz != nil {
		if sz.Width < 1 || sz.Height < 1 {
			return fmt.Errorf("image.size %dx%d needs a positive width and height", sz.Width, sz.Height)
		}
		if cfg.Grid.Horizontal > 0 && cfg.Grid.Vertical > 0 {
			cw, ch := cfg.Display.Width/cfg.Grid.Horizontal, cfg.Display.Height/cfg.Grid.Vertical
			if sz.Width > cw || sz.Height > ch {
				return fmt.Errorf("image.size %dx%d exceeds cell %dx%d", sz.Width, sz.Height, cw, ch)
			}
		}
	}
	resolved := cfg.ResolvePath(img.Path)
	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("image.path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("image.path %s is a directory", resolved)
	}
	return nil
}
