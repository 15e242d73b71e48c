package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nsepulse/pulse/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIdKey = "x-request-id"

func DebugLogUnaryInterceptor(log log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if shouldIgnore(info.FullMethod) {
			return handler(ctx, req)
		}
		var resp any
		err := debugRpc(ctx, log, info.FullMethod, func() (err error) {
			resp, err = handler(ctx, req)
			return err
		})
		return resp, err
	}
}

func DebugLogStreamInterceptor(log log.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if shouldIgnore(info.FullMethod) {
			return handler(srv, ss)
		}
		return debugRpc(ss.Context(), log, info.FullMethod, func() error {
			return handler(srv, ss)
		})
	}
}

func debugRpc(ctx context.Context, log log.Logger, method string, call func() error) error {
	addr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	var userAgent []string
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		userAgent = md.Get("user-agent")
		if ids := md.Get(requestIdKey); len(ids) > 0 {
			id = ids[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	start := time.Now()

	log.Debugf("[%s] rpc starting %s [peer: %s] %s", id, method, addr, userAgent)
	err := call()

	stat, ok := status.FromError(err)
	if !ok {
		stat = status.FromContextError(err)
	}
	log.Debugf("[%s] rpc finished %s [peer: %s] %s [code: %s] [duration: %dms]",
		id, method, addr, userAgent, stat.Code().String(), time.Since(start).Milliseconds())
	return err
}

func shouldIgnore(method string) bool {
	return strings.Contains(method, "grpc.health") || strings.Contains(method, "grpc.reflection")
}
