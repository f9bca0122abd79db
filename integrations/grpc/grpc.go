// Package grpc adapts gRPC calls to the retry executor.
package grpc

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aponysus/restream/retry"
)

// Stream is the receive side of a server-streaming call. Generated
// grpc.ServerStreamingClient[Res] values satisfy it.
type Stream[Res any] interface {
	Recv() (*Res, error)
	Trailer() metadata.MD
}

// OpenFunc starts one server-streaming call, typically by invoking a generated
// client method with ctx.
type OpenFunc[Res any] func(ctx context.Context) (Stream[Res], error)

// ServerStream returns an operation that opens a stream per attempt and yields
// every received message. io.EOF ends the stream successfully; any other error
// fails the attempt with a *StreamError that keeps the gRPC status and exposes
// trailer metadata as headers.
func ServerStream[Res any](open OpenFunc[Res]) retry.Operation[*Res] {
	return func(ctx context.Context) iter.Seq2[*Res, error] {
		return func(yield func(*Res, error) bool) {
			stream, err := open(ctx)
			if err != nil {
				yield(nil, &StreamError{Err: err})
				return
			}
			for {
				msg, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					yield(nil, &StreamError{Err: err, Trailer: stream.Trailer()})
					return
				}
				if !yield(msg, nil) {
					return
				}
			}
		}
	}
}

// UnaryClientInterceptor returns a gRPC interceptor that retries unary calls
// through exec.
func UnaryClientInterceptor(exec *retry.Executor) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return exec.Do(ctx, func(ctx context.Context) error {
			var trailer metadata.MD
			err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Trailer(&trailer))...)
			if err != nil {
				return &StreamError{Err: err, Trailer: trailer}
			}
			return nil
		})
	}
}

// StreamError is a failed gRPC call. It keeps the original status reachable
// through status.FromError and exposes trailers to the classifier.
type StreamError struct {
	Err     error
	Trailer metadata.MD
}

func (e *StreamError) Error() string { return e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// GRPCStatus returns the status of the wrapped error.
func (e *StreamError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.Err)
	return st
}

// Headers returns trailer metadata as HTTP headers, so a "retry-after" trailer
// reaches the delay resolver.
func (e *StreamError) Headers() http.Header {
	if len(e.Trailer) == 0 {
		return nil
	}
	h := make(http.Header, len(e.Trailer))
	for k, vs := range e.Trailer {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}
