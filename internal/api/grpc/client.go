package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"ai-live-hints-service/internal/schema"
)

// Client calls the hints service over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func method(name string) string {
	return "/" + ServiceName + "/" + name
}

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// GetAnswer asks for a complete answer.
func (c *Client) GetAnswer(ctx context.Context, req *schema.AnswerRequest, opts ...grpc.CallOption) (*AnswerResponse, error) {
	out := new(AnswerResponse)
	if err := c.cc.Invoke(ctx, method("GetAnswer"), req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearSession clears the session.
func (c *Client) ClearSession(ctx context.Context, req *schema.ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	out := new(ClearResponse)
	if err := c.cc.Invoke(ctx, method("ClearSession"), req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// Learn stores a curated answer.
func (c *Client) Learn(ctx context.Context, req *schema.LearnRequest, opts ...grpc.CallOption) (*LearnResponse, error) {
	out := new(LearnResponse)
	if err := c.cc.Invoke(ctx, method("Learn"), req, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// AnswerStream receives the chunks of a streamed answer.
type AnswerStream struct {
	stream grpc.ClientStream
}

// Recv returns the next chunk, or io.EOF once the stream has ended.
func (s *AnswerStream) Recv() (*AnswerChunk, error) {
	m := new(AnswerChunk)
	if err := s.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StreamAnswer starts a streamed answer.
func (c *Client) StreamAnswer(ctx context.Context, req *schema.AnswerRequest, opts ...grpc.CallOption) (*AnswerStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], method("StreamAnswer"), callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &AnswerStream{stream: stream}, nil
}

// AudioStream sends PCM frames.
type AudioStream struct {
	stream grpc.ClientStream
}

// Send sends one frame.
func (s *AudioStream) Send(f *AudioFrame) error {
	return s.stream.SendMsg(f)
}

// CloseAndRecv ends the stream and waits for the ack, which arrives once
// the last segment is transcribed.
func (s *AudioStream) CloseAndRecv() (*AudioAck, error) {
	if err := s.stream.CloseSend(); err != nil {
		return nil, err
	}
	ack := new(AudioAck)
	if err := s.stream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}

// StreamAudio opens an audio stream.
func (c *Client) StreamAudio(ctx context.Context, opts ...grpc.CallOption) (*AudioStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[1], method("StreamAudio"), callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	return &AudioStream{stream: stream}, nil
}
