// Command testclient pushes a scripted call to a running service over gRPC
// and prints the resulting views.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "accountability-call-service/internal/api/grpc"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/transcript"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	room := flag.String("room", "goggins-room", "room to push snapshots for")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agent := func(state string) transcript.Participant {
		return transcript.Participant{
			Identity:   "goggins-agent",
			Name:       "Goggins",
			Kind:       transcript.KindAgent,
			Attributes: transcript.StringAttributes(map[string]string{transcript.AgentStateKey: state}),
		}
	}
	user := transcript.Participant{Identity: "user", Name: "You", Kind: transcript.KindStandard}
	say := func(id, who, text string, final bool) transcript.TranscriptionEvent {
		return transcript.TranscriptionEvent{
			ID:              id,
			Text:            text,
			Final:           transcript.Bool(final),
			ParticipantInfo: &transcript.ParticipantInfo{Identity: who},
			Timestamp:       time.Now().UnixMilli(),
		}
	}

	var events transcript.Events
	steps := []struct {
		event transcript.TranscriptionEvent
		state string
	}{
		{say("seg-1", "goggins-agent", "What did you", false), "speaking"},
		{say("seg-1", "goggins-agent", "What did you do today?", true), "listening"},
		{say("seg-2", "user", "I ran", false), "listening"},
		{say("seg-2", "user", "I ran five miles.", true), "thinking"},
		{say("seg-3", "goggins-agent", "Good. Stay hard.", true), "speaking"},
	}

	for _, st := range steps {
		events = append(events, st.event)
		view, err := client.PushSnapshot(ctx, session.Snapshot{
			Room:           *room,
			Participants:   []transcript.Participant{user, agent(st.state)},
			Transcriptions: events,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("PushSnapshot failed")
		}
		log.Info().
			Uint64("sequence", view.Sequence).
			Str("agentState", view.AgentState).
			Bool("inProgress", view.InProgress).
			Int("segments", len(view.Segments)).
			Msg("View updated")
		time.Sleep(200 * time.Millisecond)
	}

	view, err := client.GetView(ctx, *room)
	if err != nil {
		log.Fatal().Err(err).Msg("GetView failed")
	}
	fmt.Println(view.Text)
}
