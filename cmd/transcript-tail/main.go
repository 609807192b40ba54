// Command transcript-tail follows the transcript and agent-state topics and
// prints each event as it arrives. Useful next to a running service with
// KAFKA_ENABLED=true.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"accountability-call-service/internal/models"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "call.transcript.partial", "Partial transcript topic")
	topicFinal := flag.String("topic-final", "call.transcript.final", "Final transcript topic")
	topicAgentState := flag.String("topic-agent-state", "call.agent.state", "Agent state topic")
	room := flag.String("room", "", "Only show events for this room")
	since := flag.Duration("since", time.Hour, "How far back to start reading")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("brokers", *brokers).Str("room", *room).Msg("Tailing call events")

	var wg sync.WaitGroup
	for _, topic := range []string{*topicPartial, *topicFinal, *topicAgentState} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			tail(ctx, strings.Split(*brokers, ","), topic, *room, *since)
		}(topic)
	}
	wg.Wait()
}

// tail reads partition 0 of topic without a consumer group, which keeps it
// usable through a port-forward.
func tail(ctx context.Context, brokers []string, topic, room string, since time.Duration) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not seek, reading from current offset")
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if room != "" && string(msg.Key) != room {
			continue
		}
		printEvent(topic, msg.Value)
	}
}

func printEvent(topic string, value []byte) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Undecodable message")
		return
	}

	switch head.EventType {
	case models.EventTypePartial:
		var e models.TranscriptPartial
		if err := json.Unmarshal(value, &e); err == nil {
			log.Info().Str("room", e.Room).Str("segmentId", e.SegmentID).Bool("isAgent", e.IsAgent).
				Msgf("… %s: %s", e.Speaker, truncate(e.Text, 60))
		}
	case models.EventTypeFinal:
		var e models.TranscriptFinal
		if err := json.Unmarshal(value, &e); err == nil {
			log.Info().Str("room", e.Room).Str("segmentId", e.SegmentID).Bool("isAgent", e.IsAgent).
				Msgf("%s: %s", e.Speaker, e.Text)
		}
	case models.EventTypeAgentState:
		var e models.AgentStateChanged
		if err := json.Unmarshal(value, &e); err == nil {
			log.Info().Str("room", e.Room).Str("agent", e.AgentIdentity).
				Msgf("agent %s -> %s", e.Previous, e.State)
		}
	default:
		log.Debug().Str("topic", topic).Str("eventType", head.EventType).Msg("Unknown event type")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
