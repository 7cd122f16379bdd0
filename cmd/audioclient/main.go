package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-audio/wav"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "ai-live-hints-service/internal/api/grpc"
)

// Stream audio in 100ms chunks to simulate a live call.
const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	source := flag.String("source", grpcapi.DefaultSource, "Audio source (remote or mic)")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		log.Fatal("Not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		log.Fatalf("Failed to decode WAV: %v", err)
	}

	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d",
		dec.NumChans, dec.SampleRate, dec.BitDepth)

	if dec.NumChans != 1 || dec.BitDepth != 16 {
		log.Fatal("Only 16-bit mono PCM supported")
	}
	if dec.SampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", dec.SampleRate)
	}

	pcm := make([]byte, 2*len(buf.Data))
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(s)))
	}
	chunkSize := int(dec.SampleRate) * 2 * int(chunkInterval/time.Millisecond) / 1000

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverAddr)

	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stream, err := client.StreamAudio(ctx)
	if err != nil {
		log.Fatalf("Failed to create stream: %v", err)
	}

	log.Printf("Streaming audio: source=%s", *source)

	var chunkNum int
	startTime := time.Now()
	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		chunkNum++

		frame := &grpcapi.AudioFrame{Audio: pcm[off:end]}
		if chunkNum == 1 {
			frame.Source = *source
		}
		if err := stream.Send(frame); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, end)
		}
		time.Sleep(chunkInterval)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, len(pcm), time.Since(startTime))
	log.Println("Closing stream, waiting for final segments...")

	ack, err := stream.CloseAndRecv()
	if err != nil {
		log.Fatalf("Failed to receive ack: %v", err)
	}

	log.Printf("Stream completed: session=%s source=%s frames=%d dropped=%d segments=%d",
		ack.SessionID, ack.Source, ack.Frames, ack.Dropped, ack.Segments)
}
