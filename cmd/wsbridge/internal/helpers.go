package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

func GetConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wsbridge", "config.json")
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return buildTime, goVer
}
