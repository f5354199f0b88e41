package p4rt

import "fmt"

const (
	// DeviceID is the device the zoom capture program runs on.
	DeviceID uint64 = 0
	// PipeAll addresses every pipe of a device.
	PipeAll uint32 = 0xffff
)

// Target identifies the device and pipe a table operation is applied to.
type Target struct {
	DeviceID uint64
	PipeID   uint32
}

// DefaultTarget returns the target covering all pipes of device 0.
func DefaultTarget() Target {
	return Target{
		DeviceID: DeviceID,
		PipeID:   PipeAll,
	}
}

func (t Target) String() string {
	return fmt.Sprintf("device %d pipe %#x", t.DeviceID, t.PipeID)
}
