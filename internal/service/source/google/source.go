// Package google replays recorded call audio through Google Cloud
// Speech-to-Text streaming recognition and turns the results into snapshots.
package google

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"accountability-call-service/internal/observability/logging"
	"accountability-call-service/internal/observability/metrics"
	"accountability-call-service/internal/service/session"
	"accountability-call-service/internal/service/source"
	"accountability-call-service/internal/transcript"
)

// wavHeaderSize is skipped for .wav files so only PCM samples are streamed.
const wavHeaderSize = 44

// Config holds Google STT source configuration.
type Config struct {
	Room            string
	AudioPath       string
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string // LINEAR16, MULAW, FLAC, etc.
	SpeakerIdentity string
	ChunkSize       int
	Realtime        bool // pace chunks at the audio's own rate
	MaxEvents       int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    16000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		SpeakerIdentity: "user",
		ChunkSize:       3200,
		Realtime:        true,
	}
}

// parseAudioEncoding converts string to speechpb.RecognitionConfig_AudioEncoding.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// recognizeStream is the part of speechpb.Speech_StreamingRecognizeClient used here.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// dialFunc opens a recognition stream and returns a closer for its client.
type dialFunc func(ctx context.Context) (recognizeStream, io.Closer, error)

func dialSpeech(ctx context.Context) (recognizeStream, io.Closer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("speech client: %w", err)
	}
	stream, err := c.StreamingRecognize(ctx)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("streaming recognize: %w", err)
	}
	return stream, c, nil
}

// Source implements source.Source by streaming an audio file to Google.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Source struct {
	cfg      Config
	dial     dialFunc
	recorder *source.Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu     sync.Mutex
	client io.Closer
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Google STT source.
func New(cfg Config, m *metrics.Metrics) *Source {
	return newSource(cfg, dialSpeech, m)
}

func newSource(cfg Config, dial dialFunc, m *metrics.Metrics) *Source {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.SpeakerIdentity == "" {
		cfg.SpeakerIdentity = def.SpeakerIdentity
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Source{
		cfg:      cfg,
		dial:     dial,
		recorder: source.NewRecorder(cfg.Room, "google", cfg.MaxEvents),
		metrics:  m,
		logger:   logging.WithParticipant(cfg.Room, cfg.SpeakerIdentity),
	}
}

func (s *Source) streamingConfig() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(s.cfg.AudioEncoding),
					SampleRateHertz:            s.cfg.SampleRateHz,
					LanguageCode:               s.cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: s.cfg.InterimResults,
			},
		},
	}
}

// Start opens the audio file and the recognition stream, then streams audio
// in the background. Results are pushed as they arrive.
func (s *Source) Start(ctx context.Context, sink source.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("google source already started")
	}

	f, err := os.Open(s.cfg.AudioPath)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, client, err := s.dial(ctx)
	if err != nil {
		cancel()
		f.Close()
		s.metrics.RecordSourceError("google")
		return err
	}
	if err := stream.Send(s.streamingConfig()); err != nil {
		cancel()
		f.Close()
		client.Close()
		s.metrics.RecordSourceError("google")
		return fmt.Errorf("send streaming config: %w", err)
	}

	s.client = client
	s.cancel = cancel

	s.recorder.SetConnectionState(session.ConnectionConnected)
	s.recorder.SetParticipants([]transcript.Participant{{
		Identity: s.cfg.SpeakerIdentity,
		Kind:     transcript.KindStandard,
	}})
	sink.Push(ctx, s.recorder.Snapshot())

	s.wg.Add(2)
	go s.sendAudio(ctx, f, stream)
	go s.listen(ctx, stream, sink)

	s.logger.Info().
		Str("audio", s.cfg.AudioPath).
		Str("language", s.cfg.LanguageCode).
		Int32("sampleRate", s.cfg.SampleRateHz).
		Msg("Google STT source started")
	return nil
}

func (s *Source) chunkInterval() time.Duration {
	if !s.cfg.Realtime || parseAudioEncoding(s.cfg.AudioEncoding) != speechpb.RecognitionConfig_LINEAR16 {
		return 0
	}
	bytesPerSecond := int(s.cfg.SampleRateHz) * 2
	return time.Duration(s.cfg.ChunkSize) * time.Second / time.Duration(bytesPerSecond)
}

func (s *Source) sendAudio(ctx context.Context, f *os.File, stream recognizeStream) {
	defer s.wg.Done()
	defer f.Close()
	defer stream.CloseSend()

	r := bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(s.cfg.AudioPath), ".wav") {
		if _, err := r.Discard(wavHeaderSize); err != nil {
			s.logger.Warn().Err(err).Msg("Audio shorter than WAV header")
			return
		}
	}

	interval := s.chunkInterval()
	buf := make([]byte, s.cfg.ChunkSize)
	chunks := 0
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			}
			if sendErr := stream.Send(req); sendErr != nil {
				s.logger.Error().Err(sendErr).Int("chunks", chunks).Msg("Failed to send audio")
				return
			}
			chunks++
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Error().Err(err).Msg("Failed to read audio")
			}
			s.logger.Debug().Int("chunks", chunks).Msg("Audio stream complete")
			return
		}
		if interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}
}

// listen receives recognition results until the stream ends and owns all pushes.
func (s *Source) listen(ctx context.Context, stream recognizeStream, sink source.Sink) {
	defer s.wg.Done()

	var results resultCounter
	for {
		resp, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.metrics.RecordSourceError("google")
				s.logger.Error().Err(err).Msg("Recognition stream failed")
			}
			s.recorder.SetConnectionState(session.ConnectionDisconnected)
			sink.Push(context.WithoutCancel(ctx), s.recorder.Snapshot())
			return
		}

		events := results.events(resp, s.cfg.SpeakerIdentity, time.Now())
		if len(events) == 0 {
			continue
		}
		s.recorder.Append(events...)
		sink.Push(ctx, s.recorder.Snapshot())
	}
}

// resultCounter numbers utterances. Interim results share the id of the
// utterance in progress; the id advances after each final result.
type resultCounter struct {
	n int
}

func (c *resultCounter) events(resp *speechpb.StreamingRecognizeResponse, speaker string, now time.Time) []transcript.TranscriptionEvent {
	var out []transcript.TranscriptionEvent
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		out = append(out, transcript.TranscriptionEvent{
			ID:              fmt.Sprintf("stt-%d", c.n),
			Text:            strings.TrimSpace(alt.GetTranscript()),
			Final:           transcript.Bool(r.GetIsFinal()),
			ParticipantInfo: &transcript.ParticipantInfo{Identity: speaker},
			Timestamp:       now.UnixMilli(),
		})
		if r.GetIsFinal() {
			c.n++
		}
	}
	return out
}

// Close ends the stream and releases the client.
func (s *Source) Close() error {
	s.mu.Lock()
	cancel, client := s.cancel, s.client
	s.client = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	if client != nil {
		return client.Close()
	}
	return nil
}
