package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// AskMethod is the full gRPC method name of the assistant's unary call. Both
// request and response are google.protobuf.Struct messages.
const AskMethod = "/maturity.report.v1.ReportAssistant/Ask"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCConfig holds configuration for the gRPC transport.
type GRPCConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

func (c GRPCConfig) withDefaults() GRPCConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepaliveTime <= 0 {
		c.KeepaliveTime = 2 * time.Minute
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 10 * time.Second
	}
	return c
}

// GRPCTransport sends chat requests to the assistant over gRPC.
type GRPCTransport struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// NewGRPCTransport connects to the assistant and fails fast when it is not
// reachable or reports itself unhealthy.
func NewGRPCTransport(cfg GRPCConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create assistant client for %s: %w", cfg.Address, err)
	}

	t := &GRPCTransport{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(ctx, conn); err != nil {
		t.Close()
		return nil, fmt.Errorf("assistant at %s not ready: %w", cfg.Address, err)
	}
	if err := t.Health(ctx); err != nil {
		t.Close()
		return nil, err
	}

	logger.Info("Connected to report assistant", "address", cfg.Address)
	return t, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Health runs the standard gRPC health check. Servers without the health
// service are treated as healthy.
func (t *GRPCTransport) Health(ctx context.Context) error {
	resp, err := t.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if status.Code(err) == codes.Unimplemented {
		t.logger.Warn("Assistant does not implement health checks", "address", t.addr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check failed: status %s", resp.GetStatus())
	}
	return nil
}

// Ask implements Transport.
func (t *GRPCTransport) Ask(ctx context.Context, req Request) (string, error) {
	in, err := structpb.NewStruct(map[string]any{
		"jobId":         req.JobID,
		"sessionId":     req.SessionID,
		"message":       req.Message,
		"reportContext": req.ReportContext,
	})
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}

	out := &structpb.Struct{}
	if err := t.conn.Invoke(ctx, AskMethod, in, out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrAssistant, err)
	}

	fields := out.GetFields()
	return interpretReply(
		fields["success"].GetBoolValue(),
		fields["message"].GetStringValue(),
		fields["error"].GetStringValue(),
	)
}

// Close closes the connection.
func (t *GRPCTransport) Close() {
	if err := t.conn.Close(); err != nil {
		t.logger.Warn("failed to close gRPC connection", "error", err)
	}
}
