// Package conf defines the application settings and loads them from the
// environment, with optional .env file support for local runs.
package conf

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/urbancanopy/treedetect-go/internal/errors"
)

// DefaultModelVersion identifies the bundled tree-detection model export.
// Reported to the labeling tool in every prediction record.
const DefaultModelVersion = "tree-yolov5s-oct1623"

// ModelSettings configures the TFLite detection model.
type ModelSettings struct {
	Path                string  // path to the .tflite model file
	LabelPath           string  // path to newline-delimited class labels
	Version             string  // model version string reported with predictions
	ConfidenceThreshold float64 // minimum score for a detection to be kept
	InputSize           int     // model input square size in pixels
	UseXNNPACK          bool    // enable the XNNPACK delegate
	Threads             int     // interpreter thread count, 0 uses all CPUs
}

// SpacesSettings configures the S3-compatible object storage holding task images.
type SpacesSettings struct {
	Domain string // e.g. digitaloceanspaces.com
	Region string
	Key    string
	Secret string
}

// LabelStudioSettings configures the labeling tool REST API used in batch mode.
type LabelStudioSettings struct {
	URL         string // base URL, e.g. https://labels.example.com
	AccessToken string
	ProjectID   string
	ViewID      string // optional view/tab restricting the task list
	PageSize    int
}

// ServerSettings configures the ML backend HTTP listener.
type ServerSettings struct {
	Host string
	Port int
}

// Settings holds all application configuration.
type Settings struct {
	Debug       bool
	LogLevel    string
	Model       ModelSettings
	Spaces      SpacesSettings
	LabelStudio LabelStudioSettings
	Server      ServerSettings
	RunLogPath  string // sqlite run log for batch mode, empty disables it
	SentryDSN   string
}

// setDefaults registers every config key with viper. Keys without a default
// are registered empty so Unmarshal sees env-only values.
func setDefaults() {
	viper.SetDefault("model.path", "")
	viper.SetDefault("model.labelpath", "")
	viper.SetDefault("model.version", DefaultModelVersion)
	viper.SetDefault("model.confidencethreshold", 0.0)
	viper.SetDefault("model.inputsize", 640)
	viper.SetDefault("model.usexnnpack", true)
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("spaces.domain", "")
	viper.SetDefault("spaces.region", "")
	viper.SetDefault("spaces.key", "")
	viper.SetDefault("spaces.secret", "")
	viper.SetDefault("labelstudio.url", "")
	viper.SetDefault("labelstudio.accesstoken", "")
	viper.SetDefault("labelstudio.projectid", "")
	viper.SetDefault("labelstudio.viewid", "")
	viper.SetDefault("labelstudio.pagesize", 50)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 9090)
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("debug", false)
	viper.SetDefault("runlogpath", "")
	viper.SetDefault("sentrydsn", "")
}

// Load builds Settings from environment variables, optionally reading a .env
// file first. A missing .env file is not an error; explicit environment
// variables always win over file values.
func Load(envFile string) (*Settings, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	setDefaults()
	if err := bindEnvVars(); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("unmarshaling settings: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return settings, nil
}

// EffectiveLogLevel returns the configured log level name, forced to debug
// when the DEBUG flag is set.
func (s *Settings) EffectiveLogLevel() string {
	if s.Debug {
		return "debug"
	}
	return s.LogLevel
}

// ValidateServe checks the settings required to run the HTTP backend.
// Missing required values fail fast, matching the original deployment contract.
func (s *Settings) ValidateServe() error {
	missing := missingOf(
		requirement{"MODEL", s.Model.Path},
		requirement{"SPACES_DOMAIN", s.Spaces.Domain},
		requirement{"SPACES_REGION", s.Spaces.Region},
		requirement{"SPACES_KEY", s.Spaces.Key},
		requirement{"SPACES_SECRET", s.Spaces.Secret},
	)
	if len(missing) > 0 {
		return missingError(missing)
	}
	return s.validateCommon()
}

// ValidateBatch checks the settings required for the batch prediction run,
// which needs the labeling tool API on top of the serve requirements.
func (s *Settings) ValidateBatch() error {
	missing := missingOf(
		requirement{"MODEL", s.Model.Path},
		requirement{"SPACES_DOMAIN", s.Spaces.Domain},
		requirement{"SPACES_REGION", s.Spaces.Region},
		requirement{"SPACES_KEY", s.Spaces.Key},
		requirement{"SPACES_SECRET", s.Spaces.Secret},
		requirement{"LABEL_STUDIO_URL", s.LabelStudio.URL},
		requirement{"LABEL_STUDIO_ACCESS_TOKEN", s.LabelStudio.AccessToken},
		requirement{"PROJECT_ID", s.LabelStudio.ProjectID},
	)
	if len(missing) > 0 {
		return missingError(missing)
	}
	return s.validateCommon()
}

func (s *Settings) validateCommon() error {
	if s.Model.ConfidenceThreshold < 0 || s.Model.ConfidenceThreshold > 1 {
		return errors.Newf("confidence threshold %g out of range [0,1]", s.Model.ConfidenceThreshold).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Model.InputSize <= 0 {
		return errors.Newf("model input size must be positive, got %d", s.Model.InputSize).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.Model.Threads < 0 {
		return errors.Newf("model threads must not be negative, got %d", s.Model.Threads).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	if s.LabelStudio.PageSize <= 0 {
		return errors.Newf("page size must be positive, got %d", s.LabelStudio.PageSize).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

type requirement struct {
	envVar string
	value  string
}

func missingOf(reqs ...requirement) []string {
	var missing []string
	for _, r := range reqs {
		if r.value == "" {
			missing = append(missing, r.envVar)
		}
	}
	return missing
}

func missingError(missing []string) error {
	return errors.Newf("missing required environment variables: %v", missing).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}
