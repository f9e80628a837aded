package config

import (
	_ "embed"
	"io"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"

	"photosweep/imageprocessor"
	"photosweep/logging"
	"photosweep/scoring"
)

//go:embed default.toml
var DefaultConfig []byte

type ScanConfig struct {
	Workers     int      `toml:"workers"`
	FileTimeout string   `toml:"file_timeout"`
	Extensions  []string `toml:"extensions"`
}

type BlurConfig struct {
	BestVariance  float64 `toml:"best_variance"`
	WorstVariance float64 `toml:"worst_variance"`
	Threshold     int     `toml:"threshold"`
	KernelSize    int     `toml:"kernel_size"`
}

type SimilarityConfig struct {
	BestDistance  float64 `toml:"best_distance"`
	WorstDistance float64 `toml:"worst_distance"`
	Threshold     int     `toml:"threshold"`
}

type MetadataConfig struct {
	Exiftool bool `toml:"exiftool"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type Config struct {
	Scan       ScanConfig       `toml:"scan"`
	Blur       BlurConfig       `toml:"blur"`
	Similarity SimilarityConfig `toml:"similarity"`
	Metadata   MetadataConfig   `toml:"metadata"`
	Log        LogConfig        `toml:"log"`

	// derived by Validate
	blur        scoring.Normalizer
	similarity  scoring.Normalizer
	fileTimeout time.Duration
}

// LoadConfig decodes tomlBytes over the embedded defaults and validates
// the result. Keys missing from tomlBytes keep their default.
func LoadConfig(tomlBytes []byte) (*Config, error) {
	conf := &Config{}
	if _, err := toml.Decode(string(DefaultConfig), conf); err != nil {
		return nil, errors.Wrap(err, "cannot decode default config")
	}
	if len(tomlBytes) > 0 {
		md, err := toml.Decode(string(tomlBytes), conf)
		if err != nil {
			return nil, errors.Wrapf(err, "Error unmarshalling config")
		}
		for _, key := range md.Undecoded() {
			logging.LogWarning("unknown config key '%s'", key.String())
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks every section and derives the normalizers. It collects
// all problems instead of stopping at the first one.
func (c *Config) Validate() error {
	var errs []error

	if c.Scan.Workers < 0 {
		errs = append(errs, errors.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers))
	}
	c.fileTimeout = 0
	if s := strings.TrimSpace(c.Scan.FileTimeout); s != "" {
		d, err := time.ParseDuration(s)
		switch {
		case err != nil:
			errs = append(errs, errors.Wrapf(err, "invalid scan.file_timeout '%s'", s))
		case d < 0:
			errs = append(errs, errors.Errorf("scan.file_timeout must not be negative, got %v", d))
		default:
			c.fileTimeout = d
		}
	}
	if len(imageprocessor.NewExtensionSet(c.Scan.Extensions)) == 0 {
		errs = append(errs, errors.NewPlain("scan.extensions must name at least one extension"))
	}

	blur, err := scoring.New(c.Blur.BestVariance, c.Blur.WorstVariance)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "invalid blur bounds"))
	}
	c.blur = blur
	if err := checkThreshold("blur.threshold", c.Blur.Threshold); err != nil {
		errs = append(errs, err)
	}
	if _, err := imageprocessor.NewLaplacianMeter(c.Blur.KernelSize); err != nil {
		errs = append(errs, errors.Wrap(err, "invalid blur.kernel_size"))
	}

	similarity, err := scoring.New(c.Similarity.BestDistance, c.Similarity.WorstDistance)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "invalid similarity bounds"))
	}
	c.similarity = similarity
	if err := checkThreshold("similarity.threshold", c.Similarity.Threshold); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errors.Wrap(err, "invalid log.level"))
	}

	return errors.Combine(errs...)
}

func checkThreshold(name string, v int) error {
	if v < 0 || v > 100 {
		return errors.Errorf("%s must be in [0,100], got %d", name, v)
	}
	return nil
}

// BlurNormalizer maps Laplacian variance to a blur score
func (c *Config) BlurNormalizer() scoring.Normalizer { return c.blur }

// SimilarityNormalizer maps Hamming distance to a similarity score
func (c *Config) SimilarityNormalizer() scoring.Normalizer { return c.similarity }

// FileTimeout is the parsed scan.file_timeout, zero when disabled
func (c *Config) FileTimeout() time.Duration { return c.fileTimeout }

// Encode writes the effective configuration as TOML
func (c *Config) Encode(w io.Writer) error {
	return errors.Wrap(toml.NewEncoder(w).Encode(c), "cannot encode config")
}
