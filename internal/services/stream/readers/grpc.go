package readers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"
	"github.com/Egham-7/substreams-bridge/internal/services"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/contracts"
	"github.com/Egham-7/substreams-bridge/internal/services/stream/wire"
	"github.com/Egham-7/substreams-bridge/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// BlocksMethod is the full name of the server-streaming Blocks RPC
const BlocksMethod = "/sf.substreams.rpc.v2.Stream/Blocks"

const (
	maxRecvMsgSize = 128 << 20
	maxBackoff     = 30 * time.Second
)

var blocksStreamDesc = &grpc.StreamDesc{
	StreamName:    "Blocks",
	ServerStreams: true,
}

// GRPCTransport opens Blocks streams. Connections are cached per target and
// shared by concurrent calls.
type GRPCTransport struct {
	cfg         models.StreamConfig
	conns       *clientcache.Cache[*grpc.ClientConn]
	dialOptions []grpc.DialOption
}

type Option func(*GRPCTransport)

// WithDialOptions appends options used when dialing new connections
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(t *GRPCTransport) {
		t.dialOptions = append(t.dialOptions, opts...)
	}
}

func NewGRPCTransport(cfg models.StreamConfig, opts ...Option) *GRPCTransport {
	t := &GRPCTransport{
		cfg:   cfg,
		conns: clientcache.NewCache[*grpc.ClientConn](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DialTarget converts an endpoint URL into a gRPC target. Schemeless
// endpoints are treated as https; missing ports default by scheme. The
// passthrough resolver hands host:port to the dialer unchanged.
func DialTarget(endpoint string, forcePlaintext bool) (target string, plaintext bool, err error) {
	u, err := url.Parse(services.EnsureScheme(endpoint))
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	plaintext = forcePlaintext || u.Scheme == "http"
	host := u.Host
	if u.Port() == "" {
		if plaintext {
			host += ":80"
		} else {
			host += ":443"
		}
	}
	return "passthrough:///" + host, plaintext, nil
}

func (t *GRPCTransport) conn(endpoint string) (*grpc.ClientConn, error) {
	target, plaintext, err := DialTarget(endpoint, t.cfg.Plaintext)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|plaintext=%t", target, plaintext)
	return t.conns.GetOrCreate(key, func() (*grpc.ClientConn, error) {
		var creds credentials.TransportCredentials
		if plaintext {
			creds = insecure.NewCredentials()
		} else {
			creds = credentials.NewTLS(&tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: t.cfg.Insecure, // #nosec G402 - opt-in via stream.insecure
			})
		}

		opts := append([]grpc.DialOption{
			grpc.WithTransportCredentials(creds),
			grpc.WithDefaultCallOptions(
				grpc.ForceCodec(wire.Codec{}),
				grpc.MaxCallRecvMsgSize(maxRecvMsgSize),
			),
		}, t.dialOptions...)

		fiberlog.Debugf("Creating gRPC connection to %s (plaintext=%t)", target, plaintext)
		return grpc.NewClient(target, opts...)
	})
}

// Open starts a Blocks stream. ctx bounds the whole stream, reconnects
// included.
func (t *GRPCTransport) Open(ctx context.Context, req *models.StreamRequest) (contracts.EventReader, error) {
	conn, err := t.conn(req.Endpoint)
	if err != nil {
		return nil, contracts.NewTransportError("", "connect to stream endpoint", err)
	}

	r := &grpcReader{
		conn:       conn,
		req:        req,
		cursor:     req.Cursor,
		maxRetries: t.cfg.MaxRetries,
		backoff:    t.cfg.RetryBackoff,
	}
	if err := r.connect(ctx); err != nil {
		return nil, contracts.NewTransportError("", "open stream", err)
	}
	return r, nil
}

// Close closes every cached connection
func (t *GRPCTransport) Close() error {
	var errs []error
	t.conns.Range(func(key string, conn *grpc.ClientConn) bool {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		return true
	})
	t.conns.Clear()
	return errors.Join(errs...)
}

type grpcReader struct {
	conn       *grpc.ClientConn
	req        *models.StreamRequest
	cursor     models.Cursor
	stream     grpc.ClientStream
	cancel     context.CancelFunc
	retries    int
	maxRetries int
	backoff    time.Duration
}

func (r *grpcReader) connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	if r.req.Token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+r.req.Token)
	}

	// resume from the last unit handed out, not the one the call started at
	req := *r.req
	req.Cursor = r.cursor

	stream, err := r.conn.NewStream(streamCtx, blocksStreamDesc, BlocksMethod)
	if err != nil {
		cancel()
		return err
	}
	if err := stream.SendMsg(wire.NewRequest(&req)); err != nil {
		cancel()
		return err
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return err
	}

	r.stream = stream
	r.cancel = cancel
	return nil
}

func (r *grpcReader) Next(ctx context.Context) (models.StreamEvent, error) {
	for {
		var resp wire.Response
		err := r.stream.RecvMsg(&resp)
		if errors.Is(err, io.EOF) {
			return models.StreamEvent{}, io.EOF
		}
		if err != nil {
			if err := r.reconnect(ctx, err); err != nil {
				return models.StreamEvent{}, err
			}
			continue
		}

		switch {
		case resp.Fatal != nil:
			return models.StreamEvent{}, resp.Fatal
		case resp.Data != nil:
			r.cursor = resp.Data.Cursor
			r.retries = 0
			return models.StreamEvent{Kind: models.EventNewData, Data: resp.Data}, nil
		case resp.Undo != nil:
			r.cursor = resp.Undo.LastValidCursor
			r.retries = 0
			return models.StreamEvent{Kind: models.EventUndo, Undo: resp.Undo}, nil
		case resp.Session != nil:
			fiberlog.Debugf("Stream session %s started at block %d", resp.Session.TraceID, resp.Session.ResolvedStartBlock)
		}
	}
}

// reconnect reopens the stream after a retryable failure, backing off
// exponentially. It returns cause itself once retries run out.
func (r *grpcReader) reconnect(ctx context.Context, cause error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetryable(cause) || r.retries >= r.maxRetries {
			return cause
		}

		r.retries++
		delay := r.backoff << (r.retries - 1)
		if delay <= 0 || delay > maxBackoff {
			delay = maxBackoff
		}
		fiberlog.Warnf("Stream interrupted (%v), reconnecting from cursor %q in %v (attempt %d/%d)",
			cause, r.cursor, delay, r.retries, r.maxRetries)

		r.cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := r.connect(ctx); err != nil {
			cause = err
			continue
		}
		return nil
	}
}

func (r *grpcReader) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func isRetryable(err error) bool {
	if s, ok := status.FromError(err); ok && s.Code() == codes.Unavailable {
		return true
	}
	return contracts.IsConnectionClosed(err)
}
