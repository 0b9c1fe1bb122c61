package furiosa

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables and the credential file share these keys.
const (
	AccessKeyIDEnv     = "FURIOSA_ACCESS_KEY_ID"
	SecretAccessKeyEnv = "FURIOSA_SECRET_ACCESS_KEY"
)

// ConfigDirName is the per-user directory holding the credential and config files.
const ConfigDirName = ".furiosa"

// Credentials authenticate every request to the service.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Valid reports whether both keys are present.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// String never prints the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{AccessKeyID: %q, SecretAccessKey: <redacted>}", c.AccessKeyID)
}

// ConfigFilePath returns $HOME/.furiosa/<name>.
func ConfigFilePath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName, name), nil
}

// CredentialFilePath returns $HOME/.furiosa/credential.
func CredentialFilePath() (string, error) {
	return ConfigFilePath("credential")
}

// LoadCredentials reads the keys from the environment first and fills whatever is
// missing from the credential file. It fails with ErrConfig when a key is still absent.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		AccessKeyID:     strings.TrimSpace(os.Getenv(AccessKeyIDEnv)),
		SecretAccessKey: strings.TrimSpace(os.Getenv(SecretAccessKeyEnv)),
	}
	if creds.Valid() {
		return creds, nil
	}

	path, err := CredentialFilePath()
	if err != nil {
		return Credentials{}, configError("load credentials", errors.Join(ErrNoCredentials, err))
	}
	fromFile, err := readCredentialFile(path)
	if err != nil {
		return Credentials{}, configError("load credentials", err)
	}
	if creds.AccessKeyID == "" {
		creds.AccessKeyID = fromFile.AccessKeyID
	}
	if creds.SecretAccessKey == "" {
		creds.SecretAccessKey = fromFile.SecretAccessKey
	}
	if !creds.Valid() {
		return Credentials{}, configError("load credentials", ErrNoCredentials)
	}
	return creds, nil
}

// readCredentialFile parses a KEY=VALUE credential file. A missing file yields empty credentials.
func readCredentialFile(path string) (Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("parse credential file %s: %w", path, err)
	}
	return Credentials{
		AccessKeyID:     strings.TrimSpace(values[AccessKeyIDEnv]),
		SecretAccessKey: strings.TrimSpace(values[SecretAccessKeyEnv]),
	}, nil
}
