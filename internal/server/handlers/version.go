package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/lumenhour/lumenhour/internal/core/store"
)

type buildInfo struct {
	mu        sync.RWMutex
	version   string
	commit    string
	buildDate string
	identity  *appidentity.Identity
}

var build = &buildInfo{version: "dev", commit: "unknown", buildDate: "unknown"}

// SetVersionInfo records the ldflags build metadata served by /version.
func SetVersionInfo(version, commit, buildDate string) {
	build.mu.Lock()
	defer build.mu.Unlock()
	build.version, build.commit, build.buildDate = version, commit, buildDate
}

func SetAppIdentity(identity *appidentity.Identity) {
	build.mu.Lock()
	defer build.mu.Unlock()
	build.identity = identity
}

// VersionResponse is the /version body.
type VersionResponse struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Commit        string            `json:"git_commit"`
	BuildDate     string            `json:"build_date"`
	GoVersion     string            `json:"go_version"`
	Platform      string            `json:"platform"`
	StoreSchema   int               `json:"store_schema_version"`
	Dependencies  map[string]string `json:"dependencies"`
	NumGoroutines int               `json:"num_goroutines"`
}

func currentVersion() VersionResponse {
	build.mu.RLock()
	defer build.mu.RUnlock()

	name := "lumenhour"
	if build.identity != nil && build.identity.BinaryName != "" {
		name = build.identity.BinaryName
	} else if len(os.Args) > 0 && os.Args[0] != "" {
		name = filepath.Base(os.Args[0])
	}

	deps := crucible.GetVersion()
	return VersionResponse{
		Name:          name,
		Version:       build.version,
		Commit:        build.commit,
		BuildDate:     build.buildDate,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		StoreSchema:   store.SchemaVersion,
		Dependencies:  map[string]string{"gofulmen": deps.Gofulmen, "crucible": deps.Crucible},
		NumGoroutines: runtime.NumGoroutine(),
	}
}

// VersionHandler serves build, runtime and schema versions.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(currentVersion())
}
