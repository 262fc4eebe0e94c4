package transport

import (
	"github.com/pion/webrtc/v4"
)

// DefaultICEServers are public STUN servers used for candidate gathering.
// No TURN: peers must be directly reachable.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// WebRTCOptions configures peer connections of the WebRTC transport.
type WebRTCOptions struct {
	ICEServers []string
	// Loopback gathers 127.0.0.1 host candidates, for peers on one machine.
	Loopback bool
}

// DefaultWebRTCOptions uses DefaultICEServers.
func DefaultWebRTCOptions() WebRTCOptions {
	return WebRTCOptions{ICEServers: DefaultICEServers}
}

// newPeerConnection creates a PeerConnection configured from opts.
func newPeerConnection(opts WebRTCOptions) (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	if opts.Loopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: opts.ICEServers},
		}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates the ordered, reliable channel the stream runs on.
// Ordering is required: frames may span several messages.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	return pc.CreateDataChannel("framewire", &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
}
