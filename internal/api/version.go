package api

import (
	"fmt"
	"runtime"
)

// Set at link time, see cmd/rps.
var (
	EngineVersion = "0.1.0-dev"
	GitCommit     = "unknown"
	BuildTime     = "unknown"
)

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		GoVersion:     runtime.Version(),
	}
}

// UserAgent identifies a component of this build in HTTP requests, e.g.
// "rps-client/0.1.0-dev (abc1234)".
func UserAgent(component string) string {
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s/%s (%s)", component, EngineVersion, commit)
}
