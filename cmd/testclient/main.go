package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "ai-live-hints-service/internal/api/grpc"
	"ai-live-hints-service/internal/schema"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	question := flag.String("q", "Tell me about yourself", "Question to ask")
	stream := flag.Bool("stream", false, "Stream the answer")
	clearFirst := flag.Bool("clear", false, "Clear the session before asking")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("Connected to server")

	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if *clearFirst {
		resp, err := client.ClearSession(ctx, &schema.ClearRequest{})
		if err != nil {
			log.Fatalf("failed to clear session: %v", err)
		}
		log.Printf("Cleared session %s", resp.SessionID)
	}

	req := &schema.AnswerRequest{Question: *question}
	if !*stream {
		resp, err := client.GetAnswer(ctx, req)
		if err != nil {
			log.Fatalf("failed to get answer: %v", err)
		}
		log.Printf("Answer (source=%s cached=%t latency=%dms):\n%s", resp.Source, resp.Cached, resp.LatencyMs, resp.Text)
		return
	}

	s, err := client.StreamAnswer(ctx, req)
	if err != nil {
		log.Fatalf("failed to stream answer: %v", err)
	}
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("stream failed: %v", err)
		}
		if chunk.Done {
			fmt.Println()
			log.Printf("Done (source=%s cached=%t latency=%dms)", chunk.Answer.Source, chunk.Answer.Cached, chunk.Answer.LatencyMs)
			continue
		}
		fmt.Print(chunk.Text)
	}
}
