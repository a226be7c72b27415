package secrets

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Credentials holds the API credentials for the external OCR and entity
// detection services. Values come from the environment (optionally seeded
// from a .env file) so they never live in the config file on disk.
type Credentials struct {
	OCRAPIKey      string
	DetectorAPIKey string
}

// Load reads credentials from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Credentials, error) {
	_ = godotenv.Load()

	creds := &Credentials{
		OCRAPIKey:      os.Getenv("DOCSENTRY_OCR_API_KEY"),
		DetectorAPIKey: os.Getenv("DOCSENTRY_DETECTOR_API_KEY"),
	}
	return creds, nil
}

// LoadFile reads credentials from a specific env file. Unlike Load, a
// missing file is an error: the operator asked for it explicitly.
func LoadFile(path string) (*Credentials, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load credentials file %s: %w", path, err)
	}
	return Load()
}
