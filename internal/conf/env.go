// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Model configuration
		{"model.path", "MODEL", nil},
		{"model.labelpath", "MODEL_LABELS", nil},
		{"model.version", "MODEL_VERSION", nil},
		{"model.confidencethreshold", "CONFIDENCE_THRESHOLD", validateEnvUnitFloat},
		{"model.inputsize", "MODEL_INPUT_SIZE", validateEnvPositiveInt},
		{"model.usexnnpack", "MODEL_USE_XNNPACK", validateEnvBool},
		{"model.threads", "MODEL_THREADS", validateEnvNonNegativeInt},

		// Object storage (S3-compatible Spaces)
		{"spaces.domain", "SPACES_DOMAIN", nil},
		{"spaces.region", "SPACES_REGION", nil},
		{"spaces.key", "SPACES_KEY", nil},
		{"spaces.secret", "SPACES_SECRET", nil},

		// Labeling tool API
		{"labelstudio.url", "LABEL_STUDIO_URL", validateEnvURL},
		{"labelstudio.accesstoken", "LABEL_STUDIO_ACCESS_TOKEN", nil},
		{"labelstudio.projectid", "PROJECT_ID", nil},
		{"labelstudio.viewid", "VIEW_ID", nil},
		{"labelstudio.pagesize", "PAGE_SIZE", validateEnvPositiveInt},

		// HTTP server
		{"server.host", "HOST", nil},
		{"server.port", "PORT", validateEnvPort},

		// Misc
		{"loglevel", "LOG_LEVEL", nil},
		{"debug", "DEBUG", validateEnvBool},
		{"runlogpath", "RUN_LOG_PATH", nil},
		{"sentrydsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var problems []string

	for _, binding := range bindings {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

// loadEnvFile populates the process environment from a dotenv file. Values
// already present in the environment are not overridden.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer f.Close()

	if err := gotenv.Apply(f); err != nil {
		return fmt.Errorf("parsing env file %s: %w", path, err)
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be a boolean")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("must be a valid TCP port")
	}
	return nil
}

func validateEnvUnitFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

func validateEnvURL(value string) error {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}
