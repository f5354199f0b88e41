package version

// version is injected at build time:
//
//	-ldflags "-X github.com/zoomcap/zoomcap-p4/controlplane/internal/version.version=v1.2.3"
var version string

// Version returns the injected version, or "dev" for local builds.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}
