package mock

import (
	"context"
	"errors"
	"fmt"
	"net"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/zoomcap/zoomcap-p4/common/go/xgrpc"
)

const bufSize = 1 << 20

// Server exposes a mock switch over an in-memory gRPC listener.
type Server struct {
	lis  *bufconn.Listener
	srv  *grpc.Server
	log  *zap.SugaredLogger
	done chan struct{}
}

// NewServer registers the switch on a new in-memory gRPC server.
func NewServer(sw *Switch) *Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(xgrpc.AccessLogInterceptor(sw.log)),
	)
	p4v1.RegisterP4RuntimeServer(srv, sw)

	return &Server{
		lis:  bufconn.Listen(bufSize),
		srv:  srv,
		log:  sw.log,
		done: make(chan struct{}),
	}
}

// Run serves until ctx is canceled.
func (m *Server) Run(ctx context.Context) error {
	defer close(m.done)

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		if err := m.srv.Serve(m.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("mock switch failed: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		m.log.Debug("stopping mock switch")
		m.srv.Stop()
		return nil
	})

	return wg.Wait()
}

// Done is closed once Run returns.
func (m *Server) Done() <-chan struct{} {
	return m.done
}

// DialOption routes connections to Endpoint into the in-memory listener.
func (m *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return m.lis.DialContext(ctx)
	})
}
