// testclient watches the pipeline's gRPC health service and prints every
// listening status change.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "voice-command-pipeline/internal/api/grpc"
)

func main() {
	addr := flag.String("server", "localhost:50051", "gRPC server address")
	once := flag.Bool("once", false, "check once and exit")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	req := &grpc_health_v1.HealthCheckRequest{Service: grpcapi.ServiceName}

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, req)
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		log.Printf("%s: %s", grpcapi.ServiceName, resp.Status)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.Watch(ctx, req)
	if err != nil {
		log.Fatalf("failed to watch: %v", err)
	}
	log.Printf("Watching %s on %s", grpcapi.ServiceName, *addr)
	for {
		resp, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("watch ended: %v", err)
		}
		log.Printf("%s: %s", grpcapi.ServiceName, resp.Status)
	}
}
