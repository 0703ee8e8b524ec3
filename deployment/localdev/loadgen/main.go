// Command loadgen posts synthetic observations at the engine for local
// development: a handful of well-behaved browsers plus one hot source that
// hammers a single endpoint until it gets blocked.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type observation struct {
	SourceID       string `json:"source_id"`
	Endpoint       string `json:"endpoint"`
	ResponseTimeMs int    `json:"response_time_ms"`
	StatusCode     int    `json:"status_code"`
}

var endpoints = []string{"/", "/products", "/products/42", "/cart", "/checkout", "/login"}

func main() {
	var (
		target   string
		duration time.Duration
	)
	flag.StringVar(&target, "target", "http://localhost:8080", "engine base URL")
	flag.DurationVar(&duration, "duration", time.Minute, "how long to generate traffic")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(duration)

	for i := 0; time.Now().Before(deadline); i++ {
		// Benign browsers: modest rate, varied endpoints.
		for b := 0; b < 3; b++ {
			send(client, target, observation{
				SourceID:       fmt.Sprintf("10.0.0.%d", b+1),
				Endpoint:       endpoints[rand.Intn(len(endpoints))],
				ResponseTimeMs: 30 + rand.Intn(120),
				StatusCode:     200,
			})
		}
		// The flooder: one endpoint, fast responses, relentless.
		for f := 0; f < 10; f++ {
			send(client, target, observation{
				SourceID:       "203.0.113.66",
				Endpoint:       "/login",
				ResponseTimeMs: 5 + rand.Intn(10),
				StatusCode:     200,
			})
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func send(client *http.Client, target string, obs observation) {
	body, _ := json.Marshal(obs)
	resp, err := client.Post(target+"/api/v1/observations", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("post failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var decision struct {
		Allow  bool   `json:"allow"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decision); err == nil && !decision.Allow {
		log.Printf("%s denied: %s", obs.SourceID, decision.Reason)
	}
}
