package livekit

import (
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"accountability-call-service/internal/transcript"
)

// EventsFromSegments converts forwarded transcription segments into events
// attributed to speaker. Nil segments are skipped.
func EventsFromSegments(segments []*lksdk.TranscriptionSegment, speaker string, now time.Time) []transcript.TranscriptionEvent {
	out := make([]transcript.TranscriptionEvent, 0, len(segments))
	for _, seg := range segments {
		if seg == nil {
			continue
		}
		ev := transcript.TranscriptionEvent{
			ID:        seg.ID,
			Text:      seg.Text,
			Final:     transcript.Bool(seg.Final),
			Timestamp: now.UnixMilli(),
		}
		if speaker != "" {
			ev.ParticipantInfo = &transcript.ParticipantInfo{Identity: speaker}
		}
		out = append(out, ev)
	}
	return out
}

// ParticipantsFromInfo converts the room service roster, leaving out the
// observer itself.
func ParticipantsFromInfo(infos []*livekit.ParticipantInfo, exclude string) []transcript.Participant {
	out := make([]transcript.Participant, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.GetIdentity() == exclude {
			continue
		}
		out = append(out, transcript.Participant{
			Identity:   info.GetIdentity(),
			Name:       info.GetName(),
			Kind:       kindOf(info.GetKind()),
			Attributes: transcript.StringAttributes(info.GetAttributes()),
		})
	}
	return out
}

func kindOf(k livekit.ParticipantInfo_Kind) transcript.ParticipantKind {
	switch k {
	case livekit.ParticipantInfo_AGENT:
		return transcript.KindAgent
	case livekit.ParticipantInfo_INGRESS:
		return transcript.KindIngress
	case livekit.ParticipantInfo_EGRESS:
		return transcript.KindEgress
	case livekit.ParticipantInfo_SIP:
		return transcript.KindSIP
	default:
		return transcript.KindStandard
	}
}
