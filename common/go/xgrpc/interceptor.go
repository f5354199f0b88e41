package xgrpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// AccessLogInterceptor returns a gRPC unary server interceptor that logs
// requests and responses.
//
// The interceptor logs:
// - Debug: method entry with the request in text form
// - Info: successful completion with duration and status
// - Error: failed calls with duration, status and error message
func AccessLogInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		now := time.Now()
		fields := methodFields(info.FullMethod)

		logRequest(log, "started gRPC execution", fields, req)

		resp, err := handler(ctx, req)
		duration := time.Since(now)
		st, _ := status.FromError(err)

		fields = append(fields, "status", st.Code().String(), "duration", duration)
		if err != nil {
			log.Errorw("failed to execute gRPC", append(fields, zap.Error(err))...)
		} else {
			log.Infow("completed gRPC execution", fields...)
		}

		return resp, err
	}
}

// ClientLogInterceptor returns a gRPC unary client interceptor that traces
// outgoing calls at debug level.
//
// Failures are returned to the caller untouched; reporting them is the
// caller's business.
func ClientLogInterceptor(log *zap.SugaredLogger) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req any,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		now := time.Now()
		fields := methodFields(method)

		logRequest(log, "calling gRPC", fields, req)

		err := invoker(ctx, method, req, reply, cc, opts...)
		st, _ := status.FromError(err)

		log.Debugw("called gRPC",
			append(fields,
				"target", cc.Target(),
				"status", st.Code().String(),
				"duration", time.Since(now),
			)...,
		)

		return err
	}
}

// StreamClientLogInterceptor traces opened client streams at debug level.
func StreamClientLogInterceptor(log *zap.SugaredLogger) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		stream, err := streamer(ctx, desc, cc, method, opts...)
		st, _ := status.FromError(err)

		log.Debugw("opened gRPC stream",
			append(methodFields(method),
				"target", cc.Target(),
				"status", st.Code().String(),
			)...,
		)

		return stream, err
	}
}

func logRequest(log *zap.SugaredLogger, msg string, fields []any, req any) {
	if !log.Level().Enabled(zap.DebugLevel) {
		return
	}

	if message, ok := req.(proto.Message); ok {
		fields = append(fields, "request", prototext.MarshalOptions{}.Format(message))
	}
	log.Debugw(msg, fields...)
}
