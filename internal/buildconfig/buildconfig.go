package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/diagnostician/internal/buildconfig.version=...
var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the build version
func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is served on /version.
func VersionInfo() map[string]string {
	return map[string]string{
		"service": "diagnostician",
		"version": version,
		"commit":  commit,
	}
}
