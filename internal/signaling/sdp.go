package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// MediaSummary describes the media sections of an offer or answer.
type MediaSummary struct {
	Type  webrtc.SDPType
	Audio int
	Video int
	Data  int
}

// HasVideo reports whether at least one video section is not disabled.
func (m MediaSummary) HasVideo() bool { return m.Video > 0 }

// InspectSDP parses a {"type","sdp"} session description. It is only used
// for diagnostics; relayed payloads are never rewritten.
func InspectSDP(raw json.RawMessage) (MediaSummary, error) {
	if len(raw) == 0 {
		return MediaSummary{}, fmt.Errorf("%w: empty session description", ErrMalformed)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return MediaSummary{}, fmt.Errorf("%w: session description: %v", ErrMalformed, err)
	}
	parsed, err := desc.Unmarshal()
	if err != nil {
		return MediaSummary{}, fmt.Errorf("%w: sdp: %v", ErrMalformed, err)
	}
	out := summarize(parsed)
	out.Type = desc.Type
	return out, nil
}

func summarize(sd *sdp.SessionDescription) MediaSummary {
	var out MediaSummary
	for _, md := range sd.MediaDescriptions {
		// port 0 marks a rejected or removed section
		if md.MediaName.Port.Value == 0 {
			continue
		}
		if _, inactive := md.Attribute("inactive"); inactive {
			continue
		}
		switch md.MediaName.Media {
		case "audio":
			out.Audio++
		case "video":
			out.Video++
		case "application":
			out.Data++
		}
	}
	return out
}

// InspectCandidate decodes a trickled ICE candidate.
func InspectCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: ice candidate: %v", ErrMalformed, err)
	}
	return c, nil
}
