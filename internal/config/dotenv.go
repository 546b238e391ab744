package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// DotEnvFile is the .env file read by both the gateway and qrctl,
// relative to the working directory.
const DotEnvFile = ".env"

// LoadDotEnv loads DotEnvFile into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
