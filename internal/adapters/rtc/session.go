// Package rtc implements core.MediaSession on pion/webrtc. SDP and ICE
// candidates cross the package boundary as opaque strings; candidates use
// the peers' `sdpMid$sdpMLineIndex$candidate` packing.
package rtc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chatter/internal/core"
)

const iceSeparator = "$"

// Factory builds one peer connection per call attempt.
type Factory struct {
	cfg webrtc.Configuration
}

func NewFactory(iceServers []string) *Factory {
	return &Factory{cfg: webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}}
}

func (f *Factory) NewSession() (core.MediaSession, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("rtc: new peer connection: %w", err)
	}
	return &Session{
		pc:         pc,
		candidates: make(chan string, 16),
	}, nil
}

type Session struct {
	pc         *webrtc.PeerConnection
	candidates chan string

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Create sets up the local audio transceiver and starts trickle-ICE
// gathering into the candidates stream.
func (s *Session) Create() error {
	if _, err := s.pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeAudio,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	); err != nil {
		return fmt.Errorf("rtc: add audio transceiver: %w", err)
	}

	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Stringer("state", state).Msg("ice state")
	})

	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.pushCandidate(packCandidate(c.ToJSON()))
	})
	return nil
}

func (s *Session) Offer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("rtc: create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("rtc: set local offer: %w", err)
	}
	return offer.SDP, nil
}

func (s *Session) AnswerTo(ctx context.Context, offer string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("rtc: set remote offer: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("rtc: create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("rtc: set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (s *Session) HandleAnswer(ctx context.Context, answer string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}
	if err := s.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("rtc: set remote answer: %w", err)
	}
	return nil
}

func (s *Session) HandleIce(ctx context.Context, candidate string) error {
	init, err := unpackCandidate(candidate)
	if err != nil {
		return err
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("rtc: add ice candidate: %w", err)
	}
	return nil
}

func (s *Session) IceCandidates() <-chan string { return s.candidates }

func (s *Session) Teardown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if err := s.pc.Close(); err != nil {
			log.Warn().Str("module", "rtc").Err(err).Msg("peer connection close")
		}
		close(s.candidates)
	})
}

func (s *Session) pushCandidate(c string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.candidates <- c:
	default:
		log.Warn().Str("module", "rtc").Msg("candidate stream full, dropping")
	}
}

func packCandidate(c webrtc.ICECandidateInit) string {
	mid := ""
	if c.SDPMid != nil {
		mid = *c.SDPMid
	}
	var line uint16
	if c.SDPMLineIndex != nil {
		line = *c.SDPMLineIndex
	}
	return mid + iceSeparator + strconv.Itoa(int(line)) + iceSeparator + c.Candidate
}

func unpackCandidate(s string) (webrtc.ICECandidateInit, error) {
	parts := strings.SplitN(s, iceSeparator, 3)
	if len(parts) != 3 {
		return webrtc.ICECandidateInit{}, fmt.Errorf("rtc: malformed ice candidate %q", s)
	}
	line64, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("rtc: malformed ice line index %q", parts[1])
	}
	mid := parts[0]
	line := uint16(line64)
	return webrtc.ICECandidateInit{
		Candidate:     parts[2],
		SDPMid:        &mid,
		SDPMLineIndex: &line,
	}, nil
}
