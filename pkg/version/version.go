package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time using ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		Platform:  OS + "/" + Arch,
	}
}

// String returns the long version string printed by `reelcam version`.
func (i Info) String() string {
	return fmt.Sprintf("reelcam %s (commit %s, built %s, %s, %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns a short version string used in log fields.
func (i Info) Short() string {
	return "reelcam " + i.Version
}
