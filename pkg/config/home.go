package config

import (
	"os"
	"path/filepath"
)

const envHome = "UIRESOLVE_HOME"

// HomeDir returns the directory holding the user-wide uiresolve.yaml:
// $UIRESOLVE_HOME when set, else <user config dir>/uiresolve. It returns
// "" when neither is available.
func HomeDir() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "uiresolve")
}
