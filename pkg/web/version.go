package web

import "sync"

// VersionInfo describes the running build
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

var (
	verMu sync.RWMutex
	ver   = VersionInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
)

// SetVersionInfo sets the version information exposed by /api/status
func SetVersionInfo(version, commit, buildTime string) {
	verMu.Lock()
	defer verMu.Unlock()
	ver = VersionInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// GetVersionInfo returns the currently set version info
func GetVersionInfo() VersionInfo {
	verMu.RLock()
	defer verMu.RUnlock()
	return ver
}
