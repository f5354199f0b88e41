package ontas

import (
	"github.com/zoomcap/zoomcap-p4/controlplane/internal/version"
)

// Version returns the current provisioner version.
func Version() string {
	return version.Version()
}
