package application

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// AppName is the application name used for directories and identification
	AppName = "labelr"

	// ServiceName is the name registered with the system service manager
	ServiceName = "LabelrServer"

	// Version is reported by the CLI and the health endpoint
	Version = "0.3.0"
)

var (
	once   sync.Once
	appDir string
	errDir error
)

// GetApplicationDirectory returns the labelr data directory path.
// Linux: ~/.config/labelr (via os.UserConfigDir)
// Windows: C:\Users\{username}\AppData\Local\labelr (via os.UserCacheDir)
func GetApplicationDirectory() (string, error) {
	once.Do(lazyLoad)

	if errDir != nil {
		return "", errDir
	}

	return appDir, nil
}

// DataPath joins name onto the application directory, creating the directory if needed.
func DataPath(name string) (string, error) {
	dir, err := GetApplicationDirectory()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create application directory: %w", err)
	}

	return filepath.Join(dir, name), nil
}

func lazyLoad() {
	var (
		baseDir string
		err     error
	)

	switch runtime.GOOS {
	case "windows":
		baseDir, err = os.UserCacheDir()
	default:
		baseDir, err = os.UserConfigDir()
	}

	if err != nil {
		errDir = fmt.Errorf("failed to get config directory: %w", err)
		return
	}

	appDir = filepath.Join(baseDir, AppName)
}
