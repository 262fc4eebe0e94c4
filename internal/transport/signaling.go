package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
)

// message is the JSON structure exchanged over the signaling WebSocket.
type message struct {
	Type      messageType `json:"type"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}

// signalSender serializes outgoing signaling messages to the WebSocket.
type signalSender struct {
	pc   *webrtc.PeerConnection
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *signalSender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *signalSender) sendOffer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *signalSender) sendAnswer() error {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.send(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

func (s *signalSender) sendCandidate(c *webrtc.ICECandidate) error {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return err
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: string(data)})
}

// signalReceiver applies inbound signaling messages to the peer connection.
// Candidates that arrive before the remote description are held back.
type signalReceiver struct {
	pc      *webrtc.PeerConnection
	conn    *websocket.Conn
	sender  *signalSender
	pending []webrtc.ICECandidateInit
}

// watch runs until the WebSocket fails or closes.
func (r *signalReceiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read signaling message: %w", err)
		}

		switch msg.Type {
		case msgTypeOffer:
			if err := r.pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("apply offer: %w", err)
			}
			if err := r.sender.sendAnswer(); err != nil {
				return fmt.Errorf("send answer: %w", err)
			}
			if err := r.flushCandidates(); err != nil {
				return err
			}

		case msgTypeAnswer:
			if err := r.pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: webrtc.SDPTypeAnswer, SDP: msg.SDP,
			}); err != nil {
				return fmt.Errorf("apply answer: %w", err)
			}
			if err := r.flushCandidates(); err != nil {
				return err
			}

		case msgTypeCandidate:
			var init webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
				return fmt.Errorf("parse ICE candidate: %w", err)
			}
			if r.pc.RemoteDescription() == nil {
				r.pending = append(r.pending, init)
				continue
			}
			if err := r.pc.AddICECandidate(init); err != nil {
				return fmt.Errorf("add ICE candidate: %w", err)
			}
		}
	}
}

func (r *signalReceiver) flushCandidates() error {
	for _, init := range r.pending {
		if err := r.pc.AddICECandidate(init); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	r.pending = nil
	return nil
}
