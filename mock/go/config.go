package mock

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"go.uber.org/zap"
)

// Endpoint is the dial target of a mock switch. It only resolves through the
// dial option returned by Server.DialOption.
const Endpoint = "passthrough:///p4rt-mock"

// SwitchConfig configures a mock switch.
type SwitchConfig struct {
	// DeviceID is the only device the switch answers for.
	DeviceID uint64
	// PrimaryElectionID, when set, pretends another client already holds the
	// primary role with this election id.
	PrimaryElectionID *p4v1.Uint128
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Option is a function that configures the mock switch.
type Option func(*options)

// WithLog sets the logger for the mock switch.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}
