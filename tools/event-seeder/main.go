// Command event-seeder posts synthetic media-server event batches at a
// running collector, for load testing and dashboard demos.
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

	"github.com/brianvoe/gofakeit/v6"
)

var (
	hookURL   = flag.String("url", "http://localhost:8085/hooks/janus", "Webhook endpoint URL")
	username  = flag.String("user", "", "Basic auth username")
	password  = flag.String("pass", "", "Basic auth password")
	count     = flag.Int("count", 100, "Number of events to generate")
	interval  = flag.Duration("interval", 100*time.Millisecond, "Interval between batches")
	batchSize = flag.Int("batch-size", 10, "Number of events per batch")
	calls     = flag.Int("calls", 5, "Number of simulated SIP calls to spread events over")
)

// callSim is one simulated SIP call: a session/handle pair plus the dialog
// identity that its events reference.
type callSim struct {
	session   int64
	handle    int64
	callID    string
	fromURI   string
	toURI     string
	direction string
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting event seeder:")
	log.Printf("  URL: %s", *hookURL)
	log.Printf("  Event count: %d", *count)
	log.Printf("  Batch size: %d", *batchSize)
	log.Printf("  Interval: %v", *interval)
	log.Printf("  Simulated calls: %d", *calls)

	sims := make([]*callSim, *calls)
	for i := range sims {
		sims[i] = newCallSim()
	}

	client := &http.Client{Timeout: 10 * time.Second}

	successCount := 0
	failCount := 0

	batch := make([]map[string]any, 0, *batchSize)

	for i := 0; i < *count; i++ {
		sim := sims[rand.Intn(len(sims))]
		batch = append(batch, generateEvent(sim))

		if len(batch) >= *batchSize || i == *count-1 {
			if err := sendBatch(client, batch); err != nil {
				log.Printf("Failed to send batch: %v", err)
				failCount += len(batch)
			} else {
				successCount += len(batch)
				if successCount%50 == 0 {
					log.Printf("Progress: %d/%d events sent", successCount, *count)
				}
			}
			batch = batch[:0]

			if *interval > 0 && i < *count-1 {
				time.Sleep(*interval)
			}
		}
	}

	log.Printf("Seeding complete:")
	log.Printf("  Success: %d events", successCount)
	log.Printf("  Failed: %d events", failCount)
}

func newCallSim() *callSim {
	domain := gofakeit.DomainName()
	return &callSim{
		session:   rand.Int63n(1 << 48),
		handle:    rand.Int63n(1 << 48),
		callID:    gofakeit.UUID() + "@" + domain,
		fromURI:   fmt.Sprintf("sip:%s@%s", gofakeit.Username(), domain),
		toURI:     fmt.Sprintf("sip:%s@%s", gofakeit.Username(), domain),
		direction: []string{"in", "out"}[rand.Intn(2)],
	}
}

// generateEvent builds one webhook envelope for the call. The type codes and
// field names match what the media server emits.
func generateEvent(sim *callSim) map[string]any {
	kinds := []int{1, 2, 8, 16, 32, 32, 32, 64}
	kind := kinds[rand.Intn(len(kinds))]

	env := map[string]any{
		"type":       kind,
		"timestamp":  time.Now().UnixMicro(),
		"session_id": sim.session,
	}
	if kind != 1 {
		env["handle_id"] = sim.handle
	}

	switch kind {
	case 1:
		env["event"] = map[string]any{
			"name": []string{"created", "destroyed"}[rand.Intn(2)],
		}
	case 2:
		env["event"] = map[string]any{
			"name":   []string{"attached", "detached"}[rand.Intn(2)],
			"plugin": "janus.plugin.sip",
		}
	case 8:
		owner := []string{"local", "remote"}[rand.Intn(2)]
		jsepType := []string{"offer", "answer"}[rand.Intn(2)]
		env["event"] = map[string]any{
			"owner": owner,
			"jsep": map[string]any{
				"type": jsepType,
				"sdp":  sampleSDP(),
			},
		}
	case 16:
		env["event"] = generateWebRTCEvent()
	case 32:
		env["event"] = generateMediaEvent()
	case 64:
		env["event"] = map[string]any{
			"plugin": "janus.plugin.sip",
			"data":   generateSipData(sim),
		}
	}
	return env
}

func generateWebRTCEvent() map[string]any {
	switch rand.Intn(4) {
	case 0:
		return map[string]any{
			"ice":          []string{"gathering", "connecting", "connected", "ready"}[rand.Intn(4)],
			"stream_id":    1,
			"component_id": 1,
		}
	case 1:
		return map[string]any{
			"selected-pair": fmt.Sprintf("%s:%d [host,udp] <-> %s:%d [srflx,udp]",
				gofakeit.IPv4Address(), rand.Intn(65535-1024)+1024,
				gofakeit.IPv4Address(), rand.Intn(65535-1024)+1024),
			"stream_id":    1,
			"component_id": 1,
		}
	case 2:
		return map[string]any{
			"dtls": []string{"trying", "connected"}[rand.Intn(2)],
		}
	default:
		return map[string]any{
			"connection": []string{"webrtcup", "hangup"}[rand.Intn(2)],
		}
	}
}

func generateMediaEvent() map[string]any {
	medium := []string{"audio", "video"}[rand.Intn(2)]
	if rand.Intn(5) == 0 {
		return map[string]any{
			"media":     medium,
			"receiving": rand.Intn(2) == 0,
		}
	}
	return map[string]any{
		"media":                  medium,
		"base":                   48000,
		"lsr":                    rand.Intn(1 << 30),
		"lost":                   rand.Intn(20),
		"lost-by-remote":         rand.Intn(20),
		"jitter-local":           rand.Float64() * 30,
		"jitter-remote":          rand.Float64() * 30,
		"packets-sent":           rand.Intn(100000),
		"packets-received":       rand.Intn(100000),
		"bytes-sent":             rand.Intn(10000000),
		"bytes-received":         rand.Intn(10000000),
		"nacks-sent":             rand.Intn(50),
		"nacks-received":         rand.Intn(50),
		"rtt":                    rand.Float64() * 200,
		"in-link-quality":        float64(rand.Intn(101)),
		"in-media-link-quality":  float64(rand.Intn(101)),
		"out-link-quality":       float64(rand.Intn(101)),
		"out-media-link-quality": float64(rand.Intn(101)),
		"bytes-sent-lastsec":     rand.Intn(200000),
		"bytes-received-lastsec": rand.Intn(200000),
	}
}

func generateSipData(sim *callSim) map[string]any {
	marker := "sip-out"
	raw := fmt.Sprintf("INVITE %s SIP/2.0\r\nFrom: <%s>\r\nTo: <%s>\r\nCall-ID: %s\r\nCSeq: 1 INVITE\r\n",
		sim.toURI, sim.fromURI, sim.toURI, sim.callID)
	if rand.Intn(2) == 0 {
		marker = "sip-in"
		raw = fmt.Sprintf("SIP/2.0 200 OK\r\nFrom: <%s>\r\nTo: <%s>\r\nCall-ID: %s\r\nCSeq: 1 INVITE\r\n",
			sim.fromURI, sim.toURI, sim.callID)
	}
	return map[string]any{
		"event":    marker,
		"call_id":  sim.callID,
		"from":     sim.fromURI,
		"to":       sim.toURI,
		"incoming": sim.direction == "in",
		"outgoing": sim.direction == "out",
		"sip":      raw,
	}
}

func sampleSDP() string {
	return fmt.Sprintf("v=0\r\no=- %d 1 IN IP4 %s\r\ns=-\r\nt=0 0\r\nm=audio %d RTP/SAVPF 111\r\n",
		rand.Int63n(1<<40), gofakeit.IPv4Address(), rand.Intn(65535-1024)+1024)
}

func sendBatch(client *http.Client, events []map[string]any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(events); err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, *hookURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *username != "" {
		req.SetBasicAuth(*username, *password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
