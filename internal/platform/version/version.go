// Package version exposes build metadata injected via ldflags.
package version

import (
	"runtime"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// Service is the name reported in build info and outgoing requests.
const Service = "funding-calculator-server"

// Set with -ldflags "-X .../version.Version=v1.2.3"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds complete build information
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// Publish exports the build info as the build_info gauge.
func Publish() Info {
	info := Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)
	return info
}

// UserAgent identifies this service to the upstream provider.
func UserAgent() string {
	return Service + "/" + Version
}
