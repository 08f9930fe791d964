package env

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const DefaultEnvFile = ".env"

// Load fills config from the environment. Dotenv files (DefaultEnvFile when
// none given) are read first; missing files are skipped, variables already
// set in the environment win.
func Load(config any, files ...string) error {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}

	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return errors.Wrap(err, "failed to load dotenv files")
		}
	}

	if err := envconfig.Process("", config); err != nil {
		return errors.Wrap(err, "failed to envconfig.Process")
	}

	return nil
}
