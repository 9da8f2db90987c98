package version

// Version information set at build time via ldflags
var (
	// Version is the semantic version of the build
	Version = "v0.1.0"
	// Commit is the git revision of the build, when known
	Commit = ""
)

// GetVersion returns the version string
func GetVersion() string {
	if Commit != "" {
		return Version + "-" + Commit
	}
	return Version
}
