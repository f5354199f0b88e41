package p4rt

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// DefaultClientID is the client identifier used when none is configured.
//
// It doubles as the arbitration election id, so concurrent provisioning
// runs with the same id fight over the primary role instead of both writing.
const DefaultClientID = 1

type options struct {
	Log         *zap.SugaredLogger
	DeviceID    uint64
	ElectionID  uint64
	DialOptions []grpc.DialOption
}

func newOptions() *options {
	return &options{
		Log:        zap.NewNop().Sugar(),
		DeviceID:   DeviceID,
		ElectionID: DefaultClientID,
	}
}

// Option is a function that configures the Client.
type Option func(*options)

// WithLog sets the logger for the Client.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithDeviceID selects the device the Client talks to.
func WithDeviceID(id uint64) Option {
	return func(o *options) {
		o.DeviceID = id
	}
}

// WithElectionID sets the election id used for arbitration and writes.
func WithElectionID(id uint64) Option {
	return func(o *options) {
		o.ElectionID = id
	}
}

// WithDialOptions appends extra gRPC dial options, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.DialOptions = append(o.DialOptions, opts...)
	}
}
