package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/delivery"
	"github.com/vietddude/relay/internal/dispatch"
)

// Quick manual smoke test for the dispatch engine against a real upstream.
// The relay daemon lives in cmd/relay.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	upstreamURL := os.Getenv("UPSTREAM_URL")
	if upstreamURL == "" {
		log.Fatalf("UPSTREAM_URL is not set")
	}
	token := os.Getenv("UPSTREAM_TOKEN")

	// 1. Create transport and dispatcher
	transport := delivery.NewHTTPTransport(upstreamURL, token, 10*time.Second)
	d := dispatch.New(dispatch.DefaultConfig(), transport)
	d.SetErrorListener(func(message string) {
		log.Printf("rejected: %s", message)
	})

	// 2. Enqueue a few sample events
	for i := 0; i < 5; i++ {
		d.Enqueue(domain.NewRequest(domain.EndpointTrack, domain.Payload{
			{Key: "event", Value: "smoke_test"},
			{Key: "distinct_id", Value: fmt.Sprintf("smoke-%d", i)},
			{Key: "time", Value: time.Now().Unix()},
		}))
	}

	// 3. Give the worker a moment, then drain
	time.Sleep(2 * time.Second)
	d.Stop(false)

	health := transport.GetHealth()
	log.Printf("done: available=%v error_rate=%.2f latency=%v",
		health.Available, health.ErrorRate, health.Latency)
}
