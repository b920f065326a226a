package debug

import (
	"runtime/debug"
	"strings"
)

// ReadBuildInfo returns a one line description of the running binary:
// module version, Go version and the vcs state stamped by the build.
func ReadBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	parts := []string{"version=" + info.Main.Version, "go=" + info.GoVersion}
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			parts = append(parts, s.Key+"="+s.Value)
		}
	}
	return strings.Join(parts, " ")
}
