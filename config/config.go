// Package config defines the service configuration and how it maps onto
// post-processing settings.
package config

import (
	"runtime"

	"github.com/nvr-ai/go-nms/models"
	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/pkg/errors"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Dev switches the logger to the console encoder.
	Dev bool `koanf:"dev"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ScoreThreshold drops (candidate, class) pairs at or below it.
	ScoreThreshold float64 `koanf:"score_threshold"`

	// MaxNum caps detections per image; zero or negative is unlimited.
	MaxNum int `koanf:"max_num"`

	// Workers bounds per-class concurrency on the rotated path.
	Workers int `koanf:"workers"`

	// Labels names the class list used to name output labels: coco, voc,
	// dota, or empty for none.
	Labels string `koanf:"labels"`

	NMS      NMS      `koanf:"nms"`
	Encoding Encoding `koanf:"encoding"`
	Metrics  Metrics  `koanf:"metrics"`
}

// NMS mirrors the nms block of a detector test config.
type NMS struct {
	Type          string  `koanf:"type"`
	IoUThreshold  float64 `koanf:"iou_threshold"`
	ClassAgnostic bool    `koanf:"class_agnostic"`

	// Soft-NMS only.
	Method   string  `koanf:"method"`
	Sigma    float64 `koanf:"sigma"`
	MinScore float64 `koanf:"min_score"`
}

// Encoding states the box layout. Empty fields are inferred.
type Encoding struct {
	Kind       string `koanf:"kind" json:"kind,omitempty" yaml:"kind,omitempty"`
	Sharing    string `koanf:"sharing" json:"sharing,omitempty" yaml:"sharing,omitempty"`
	Background string `koanf:"background" json:"background,omitempty" yaml:"background,omitempty"`
}

// Metrics configures the Prometheus exporter.
type Metrics struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// New returns the defaults.
func New() *Config {
	soft := postprocess.DefaultSoftParams()
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		ScoreThreshold: 0.05,
		MaxNum:         100,
		Workers:        runtime.NumCPU(),
		NMS: NMS{
			Type:         string(postprocess.AlgorithmNMS),
			IoUThreshold: 0.5,
			Method:       string(soft.Method),
			Sigma:        float64(soft.Sigma),
			MinScore:     float64(soft.MinScore),
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "nms",
		},
	}
}

// NMSConfig builds the immutable suppression configuration.
func (c *Config) NMSConfig() (postprocess.NMSConfig, error) {
	alg, err := postprocess.ParseAlgorithm(c.NMS.Type)
	if err != nil {
		return postprocess.NMSConfig{}, errors.Wrap(err, "nms.type")
	}
	soft := postprocess.SoftParams{
		Method:   postprocess.SoftMethod(c.NMS.Method),
		Sigma:    float32(c.NMS.Sigma),
		MinScore: float32(c.NMS.MinScore),
	}
	cfg, err := postprocess.NewNMSConfig(alg, float32(c.NMS.IoUThreshold),
		postprocess.WithSoftParams(soft),
		postprocess.WithClassAgnostic(c.NMS.ClassAgnostic))
	if err != nil {
		return postprocess.NMSConfig{}, errors.Wrap(err, "nms")
	}
	return cfg, nil
}

// PostprocessEncoding parses the encoding block.
func (c *Config) PostprocessEncoding() (postprocess.Encoding, error) {
	return c.Encoding.Parse()
}

// Parse converts the textual encoding into a postprocess.Encoding.
func (e Encoding) Parse() (postprocess.Encoding, error) {
	kind, err := postprocess.ParseKind(e.Kind)
	if err != nil {
		return postprocess.Encoding{}, err
	}
	sharing, err := postprocess.ParseSharing(e.Sharing)
	if err != nil {
		return postprocess.Encoding{}, err
	}
	bg, err := postprocess.ParseBackground(e.Background)
	if err != nil {
		return postprocess.Encoding{}, err
	}
	return postprocess.Encoding{Kind: kind, Sharing: sharing, Background: bg}, nil
}

// Validate checks the fields that no downstream constructor checks.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "addr must not be empty")
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "score_threshold %v outside [0, 1]", c.ScoreThreshold)
	}
	if c.Workers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "workers must be positive, got %d", c.Workers)
	}
	if _, err := c.NMSConfig(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if _, err := c.PostprocessEncoding(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if _, err := c.LabelSet(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

// LabelSet parses Labels.
func (c *Config) LabelSet() (models.LabelSet, error) {
	return models.ParseLabelSet(c.Labels)
}

// PostprocessorArgs converts the configuration into postprocessor arguments.
// Logger and Recorder are left for the caller.
func (c *Config) PostprocessorArgs() (postprocess.NewPostprocessorArgs, error) {
	nms, err := c.NMSConfig()
	if err != nil {
		return postprocess.NewPostprocessorArgs{}, err
	}
	enc, err := c.PostprocessEncoding()
	if err != nil {
		return postprocess.NewPostprocessorArgs{}, err
	}
	return postprocess.NewPostprocessorArgs{
		NMS:            nms,
		Encoding:       enc,
		ScoreThreshold: float32(c.ScoreThreshold),
		MaxNum:         c.MaxNum,
		Workers:        c.Workers,
	}, nil
}
