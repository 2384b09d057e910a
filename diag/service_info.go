package diag

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ServiceType represents how the process is running.
type ServiceType string

const (
	ServiceTypeSystemd    ServiceType = "systemd"
	ServiceTypeDocker     ServiceType = "docker"
	ServiceTypeStandalone ServiceType = "standalone"
)

// ServiceInfo is static process information captured at startup.
type ServiceInfo struct {
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	PID        int         `json:"pid"`
	StartTime  time.Time   `json:"start_time"`
	Type       ServiceType `json:"type"`
	BinaryPath string      `json:"binary_path"`
	WorkingDir string      `json:"working_directory"`
	ServerURL  string      `json:"server_url"`
	Unit       string      `json:"unit"`
	StatusAddr string      `json:"status_address,omitempty"`
}

// AutoDetect fills in runtime fields for the current process.
func AutoDetect(name, version string) *ServiceInfo {
	binaryPath, _ := os.Executable()
	if binaryPath != "" {
		if resolved, err := filepath.EvalSymlinks(binaryPath); err == nil {
			binaryPath = resolved
		}
	}
	workingDir, _ := os.Getwd()

	return &ServiceInfo{
		Name:       name,
		Version:    version,
		PID:        os.Getpid(),
		StartTime:  time.Now().UTC().Truncate(time.Second),
		Type:       detectServiceType(),
		BinaryPath: binaryPath,
		WorkingDir: workingDir,
	}
}

func detectServiceType() ServiceType {
	if os.Getenv("INVOCATION_ID") != "" {
		return ServiceTypeSystemd
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return ServiceTypeDocker
	}
	if data, err := os.ReadFile("/proc/self/cgroup"); err == nil {
		cgroup := string(data)
		if strings.Contains(cgroup, "docker") || strings.Contains(cgroup, "containerd") {
			return ServiceTypeDocker
		}
	}
	if data, err := os.ReadFile("/proc/1/comm"); err == nil && string(data) == "systemd\n" {
		return ServiceTypeSystemd
	}
	return ServiceTypeStandalone
}
