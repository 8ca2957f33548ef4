package version

import (
	"runtime/debug"
	"sync"
)

// Set at link time, e.g. -ldflags "-X blocksync/internal/app/version.release=v1.2.0".
var (
	release = "dev"
	builtAt = "unknown"
)

// Info describes the running binary.
type Info struct {
	Release   string `json:"release"`
	BuiltAt   string `json:"builtAt"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"goVersion,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	once sync.Once
	info Info
)

// Get combines the link-time values with the VCS stamp recorded by the Go
// toolchain. It is computed once per process.
func Get() Info {
	once.Do(func() {
		info = fromBuildInfo(release, builtAt, debug.ReadBuildInfo)
	})
	return info
}

func fromBuildInfo(release, builtAt string, read func() (*debug.BuildInfo, bool)) Info {
	out := Info{Release: release, BuiltAt: builtAt}

	bi, ok := read()
	if !ok || bi == nil {
		return out
	}
	out.GoVersion = bi.GoVersion

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.time":
			if out.BuiltAt == "unknown" {
				out.BuiltAt = setting.Value
			}
		case "vcs.modified":
			out.Modified = setting.Value == "true"
		}
	}
	return out
}
