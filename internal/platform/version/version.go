package version

import (
	"runtime"
	"strings"
)

// Build information, injected via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// AppName is the product name shown next to the version.
const AppName = "Collect"

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

// VersionedAppName renders the name shown in the main menu header.
// A pre-release suffix such as "1.4.0-beta" goes on its own line.
func VersionedAppName() string {
	return versionedName(Version)
}

func versionedName(v string) string {
	if v == "" || v == "dev" {
		return AppName + " dev"
	}
	v = strings.TrimPrefix(v, "v")
	return AppName + " v" + strings.Replace(v, "-", "\n", 1)
}
