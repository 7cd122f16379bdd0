package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"ai-live-hints-service/internal/schema"
)

func getAnswerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(schema.AnswerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HintsServer).GetAnswer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetAnswer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HintsServer).GetAnswer(ctx, req.(*schema.AnswerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func clearSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(schema.ClearRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HintsServer).ClearSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ClearSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HintsServer).ClearSession(ctx, req.(*schema.ClearRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func learnHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(schema.LearnRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HintsServer).Learn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Learn"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HintsServer).Learn(ctx, req.(*schema.LearnRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamAnswerHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(schema.AnswerRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(HintsServer).StreamAnswer(in, stream)
}

func streamAudioHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(HintsServer).StreamAudio(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HintsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAnswer", Handler: getAnswerHandler},
		{MethodName: "ClearSession", Handler: clearSessionHandler},
		{MethodName: "Learn", Handler: learnHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamAnswer", Handler: streamAnswerHandler, ServerStreams: true},
		{StreamName: "StreamAudio", Handler: streamAudioHandler, ClientStreams: true},
	},
	Metadata: "hints/v1/hints.json",
}
