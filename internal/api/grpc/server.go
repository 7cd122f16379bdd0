package grpcapi

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/answer"
	"ai-live-hints-service/internal/service/audio"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/session"
	"ai-live-hints-service/internal/service/stt"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hints.v1.HintsService"

// DefaultSource is used for audio streams that do not name their source.
const DefaultSource = "remote"

// Learner stores curated answers.
type Learner interface {
	Learn(ctx context.Context, question, answer string) (precomputed.Answer, error)
}

// SourceOpener creates and attaches the handler of an audio source.
type SourceOpener func(ctx context.Context, source string) *audio.Handler

// HintsServer is the service implementation behind the service descriptor.
type HintsServer interface {
	GetAnswer(ctx context.Context, req *schema.AnswerRequest) (*AnswerResponse, error)
	ClearSession(ctx context.Context, req *schema.ClearRequest) (*ClearResponse, error)
	Learn(ctx context.Context, req *schema.LearnRequest) (*LearnResponse, error)
	StreamAnswer(req *schema.AnswerRequest, stream grpc.ServerStream) error
	StreamAudio(stream grpc.ServerStream) error
}

// Server implements HintsServer on top of a live session.
type Server struct {
	session   *session.Manager
	open      SourceOpener
	learner   Learner
	validator *schema.Validator
	logger    zerolog.Logger
}

// Register adds the hints service to a gRPC server.
func Register(g *grpc.Server, sess *session.Manager, open SourceOpener, learner Learner, validator *schema.Validator) *Server {
	s := &Server{
		session:   sess,
		open:      open,
		learner:   learner,
		validator: validator,
		logger:    logging.WithComponent("grpc"),
	}
	g.RegisterService(&serviceDesc, s)
	return s
}

// GetAnswer returns a complete answer.
func (s *Server) GetAnswer(ctx context.Context, req *schema.AnswerRequest) (*AnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	res, err := s.session.Ask(ctx, query(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return toResponse(res), nil
}

// StreamAnswer streams answer chunks, ending with a Done chunk.
func (s *Server) StreamAnswer(req *schema.AnswerRequest, stream grpc.ServerStream) error {
	if err := s.validator.Validate(req); err != nil {
		return toStatus(err)
	}
	ch, err := s.session.Stream(stream.Context(), query(req))
	if err != nil {
		return toStatus(err)
	}
	for c := range ch {
		if c.Err != nil {
			return toStatus(c.Err)
		}
		msg := &AnswerChunk{Text: c.Text}
		if c.Done {
			msg = &AnswerChunk{Done: true, Answer: toResponse(c.Result)}
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

// ClearSession wipes the short-lived session state.
func (s *Server) ClearSession(ctx context.Context, req *schema.ClearRequest) (*ClearResponse, error) {
	s.session.ClearSession()
	return &ClearResponse{SessionID: s.session.ID()}, nil
}

// Learn stores a curated answer.
func (s *Server) Learn(ctx context.Context, req *schema.LearnRequest) (*LearnResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, toStatus(err)
	}
	if s.learner == nil {
		return nil, status.Error(codes.Unimplemented, "learning is disabled")
	}
	a, err := s.learner.Learn(ctx, req.Question, req.Answer)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LearnResponse{ID: a.ID}, nil
}

// StreamAudio feeds a client stream of PCM frames into the session. The
// source named by the first frame is attached for the life of the stream;
// closing the stream flushes the last segment before the ack.
func (s *Server) StreamAudio(stream grpc.ServerStream) error {
	ctx := stream.Context()

	var first AudioFrame
	if err := stream.RecvMsg(&first); err != nil {
		if errors.Is(err, io.EOF) {
			return status.Error(codes.InvalidArgument, "empty audio stream")
		}
		return err
	}
	source := strings.TrimSpace(first.Source)
	if source == "" {
		source = DefaultSource
	}

	logger := logging.WithSession(s.session.ID(), source)
	h := s.open(ctx, source)
	logger.Info().Msg("Audio stream opened")

	frame := first
	var recvErr error
	for {
		if len(frame.Audio) > 0 {
			if _, err := h.Enqueue(stt.FromLinear16(frame.Audio)); err != nil {
				recvErr = status.Error(codes.Aborted, err.Error())
				break
			}
		}
		frame = AudioFrame{}
		if err := stream.RecvMsg(&frame); err != nil {
			if !errors.Is(err, io.EOF) {
				recvErr = err
			}
			break
		}
	}

	s.session.Release(source, h)
	st := h.Stats()
	if recvErr != nil {
		logger.Warn().Err(recvErr).Msg("Audio stream aborted")
		return recvErr
	}

	logger.Info().
		Int("frames", st.FramesReceived).
		Int("dropped", st.FramesDropped).
		Int("segments", st.Segments).
		Msg("Audio stream completed")
	return stream.SendMsg(&AudioAck{
		SessionID: s.session.ID(),
		Source:    source,
		Frames:    st.FramesReceived,
		Dropped:   st.FramesDropped,
		Segments:  st.Segments,
	})
}

func query(req *schema.AnswerRequest) session.Query {
	return session.Query{Question: req.Question, History: req.History, Profile: req.Profile}
}

// toStatus maps service errors to gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, answer.ErrInferenceTimeout):
		return status.Error(codes.DeadlineExceeded, answer.ErrInferenceTimeout.Error())
	case errors.Is(err, answer.ErrInferenceBackendDown):
		return status.Error(codes.Unavailable, answer.ErrInferenceBackendDown.Error())
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, answer.ErrEmptyQuestion),
		errors.Is(err, precomputed.ErrEmptyAnswer):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
