package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nsepulse/pulse/diag/telemetry"
	"github.com/nsepulse/pulse/intraday"
	"github.com/nsepulse/pulse/log"
	"github.com/nsepulse/pulse/model"
	"github.com/nsepulse/pulse/pubsub"
	"github.com/nsepulse/pulse/store"
	"github.com/nsepulse/pulse/stream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SignalServiceName   = "pulse.v1.SignalService"
	GetSnapshotMethod   = "/" + SignalServiceName + "/GetSnapshot"
	GetIntradayMethod   = "/" + SignalServiceName + "/GetIntraday"
	WatchSnapshotMethod = "/" + SignalServiceName + "/WatchSnapshot"
)

// SignalServiceServer serves the market snapshots and intraday series.
// Messages are protobuf well-known types, so clients need no generated code.
type SignalServiceServer interface {
	GetSnapshot(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetIntraday(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	WatchSnapshot(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

var signalServiceDesc = grpc.ServiceDesc{
	ServiceName: SignalServiceName,
	HandlerType: (*SignalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "GetIntraday", Handler: getIntradayHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSnapshot", Handler: watchSnapshotHandler, ServerStreams: true},
	},
	Metadata: "pulse/v1/signal.proto",
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalServiceServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetSnapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalServiceServer).GetSnapshot(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getIntradayHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalServiceServer).GetIntraday(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetIntradayMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalServiceServer).GetIntraday(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func watchSnapshotHandler(srv any, ss grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := ss.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SignalServiceServer).WatchSnapshot(in, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: ss})
}

type signalService struct {
	store        store.Store
	registry     intraday.Registry
	streamServer stream.Server
	log          log.Logger
	closed       chan struct{}
	closeOnce    sync.Once
}

func newSignalService(st store.Store, registry intraday.Registry, publisher pubsub.Publisher[model.Update], telemetryReporter telemetry.Reporter, log log.Logger) *signalService {
	return &signalService{
		store:        st,
		registry:     registry,
		streamServer: stream.NewServer(st, publisher, telemetryReporter, log, "grpc"),
		log:          log,
		closed:       make(chan struct{}),
	}
}

func (s *signalService) GetSnapshot(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	market, err := parseMarket(req)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.Get(ctx, market)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "snapshot not found: "+market.String())
		}
		s.log.Errorf("%s", err)
		return nil, status.Error(codes.Unknown, "the request failed; please check the logs for more details")
	}
	return s.toStruct(snapshot)
}

func (s *signalService) GetIntraday(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	market, err := parseMarket(req)
	if err != nil {
		return nil, err
	}
	series := s.registry.Series(market)
	items := make([]any, 0, len(series))
	for _, entry := range series {
		var item map[string]any
		if err = convert(entry, &item); err != nil {
			s.log.Errorf("failed to convert intraday entry: %s", err)
			return nil, status.Error(codes.Internal, "failed to convert intraday entry")
		}
		items = append(items, item)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		s.log.Errorf("failed to convert intraday series: %s", err)
		return nil, status.Error(codes.Internal, "failed to convert intraday series")
	}
	return list, nil
}

func (s *signalService) WatchSnapshot(req *wrapperspb.StringValue, srv grpc.ServerStreamingServer[structpb.Struct]) error {
	market, err := parseMarket(req)
	if err != nil {
		return err
	}
	str := s.streamServer.GetOrCreateStream(market)
	conn := str.CreateConnection(srv.Context())
	defer str.CloseConnection(conn)

	for {
		select {
		case snapshot := <-conn.Receive():
			payload, err := s.toStruct(snapshot)
			if err != nil {
				continue
			}
			if err = srv.Send(payload); err != nil {
				s.log.Errorf("%s", err)
			}
		case <-srv.Context().Done():
			return srv.Context().Err()
		case <-s.closed:
			return status.Error(codes.Aborted, "server down")
		}
	}
}

func (s *signalService) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.streamServer.Close()
	})
}

func (s *signalService) toStruct(snapshot *model.Snapshot) (*structpb.Struct, error) {
	var fields map[string]any
	if err := convert(snapshot, &fields); err != nil {
		s.log.Errorf("failed to convert snapshot: %s", err)
		return nil, status.Error(codes.Internal, "failed to convert snapshot")
	}
	res, err := structpb.NewStruct(fields)
	if err != nil {
		s.log.Errorf("failed to convert snapshot: %s", err)
		return nil, status.Error(codes.Internal, "failed to convert snapshot")
	}
	return res, nil
}

func parseMarket(req *wrapperspb.StringValue) (model.Market, error) {
	market, err := model.ParseMarket(req.GetValue())
	if err != nil {
		return "", status.Error(codes.InvalidArgument, "invalid market parameter: '"+req.GetValue()+"'")
	}
	return market, nil
}

// convert maps v onto the JSON shape the HTTP API exposes.
func convert(v any, target any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}
