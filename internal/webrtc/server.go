// Package webrtc pushes crossing events to browsers over a WebRTC data
// channel.
package webrtc

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
)

const (
	// ChannelLabel names the negotiated data channel. Browsers create it with
	// {negotiated: true, id: ChannelID}.
	ChannelLabel = "inventory"
	ChannelID    = 0

	clientBuffer = 32
)

var (
	ErrTooManyClients = errors.New("maximum clients reached")
	ErrInvalidOffer   = errors.New("invalid offer")
)

// Config holds the ICE and admission settings.
type Config struct {
	STUNServers []string `yaml:"stun_servers"`
	MaxClients  int      `yaml:"max_clients"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		STUNServers: []string{"stun:stun.l.google.com:19302"},
		MaxClients:  10,
	}
}

// Client represents a connected WebRTC client
type Client struct {
	id        string
	peerConn  *webrtc.PeerConnection
	channel   *webrtc.DataChannel
	ready     chan struct{}
	readyOnce sync.Once
	eventChan chan []byte
	closeChan chan struct{}
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	metrics    *metrics.Metrics
}

// NewServer creates a new WebRTC server. m may be nil.
func NewServer(cfg Config, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, url := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: DefaultConfig().STUNServers}}
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	return &Server{
		clients:    make(map[string]*Client),
		config:     webrtc.Configuration{ICEServers: iceServers},
		maxClients: cfg.MaxClients,
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine)),
		metrics:    m,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, errors.Wrapf(ErrInvalidOffer, "parse: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, errors.Wrapf(ErrInvalidOffer, "type %q", offer.Type.String())
	}

	if n := s.GetClientCount(); n >= s.maxClients {
		return nil, errors.Wrapf(ErrTooManyClients, "%d", s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	negotiated := true
	id := uint16(ChannelID)
	ordered := true
	channel, err := peerConn.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
		Ordered:    &ordered,
	})
	if err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "create data channel")
	}

	client := &Client{
		id:        uuid.NewString(),
		peerConn:  peerConn,
		channel:   channel,
		ready:     make(chan struct{}),
		eventChan: make(chan []byte, clientBuffer),
		closeChan: make(chan struct{}),
	}
	channel.OnOpen(func() {
		logger.Debug("WebRTC", "Client %s data channel open", client.id)
		client.readyOnce.Do(func() { close(client.ready) })
	})

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("WebRTC", "Client %s connection state: %s", client.id, state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			logger.Info("WebRTC", "Client %s connection lost (Peer: %s), removing...", client.id, state.String())
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "set remote description")
	}
	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "create answer")
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, errors.Wrap(err, "set local description")
	}
	<-gatherComplete

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	if s.metrics != nil {
		s.metrics.WebRTCClients.Add(1)
		s.metrics.WebRTCTotal.Add(1)
	}

	go s.sendEvents(client)
	logger.Info("WebRTC", "Client %s connected", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		s.RemoveClient(client.id)
		return nil, errors.New("no local description available")
	}
	return json.Marshal(localDesc)
}

// ServeHTTP answers POSTed offers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	offerJSON, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	answerJSON, err := s.HandleOffer(offerJSON)
	if err != nil {
		logger.Warn("WebRTC", "Offer rejected: %v", err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidOffer):
			status = http.StatusBadRequest
		case errors.Is(err, ErrTooManyClients):
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answerJSON)
}

// Publish queues the frame's crossing events for every client.
func (s *Server) Publish(res pipeline.Result) {
	if len(res.Events) == 0 {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if len(s.clients) == 0 {
		return
	}

	for _, ev := range res.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("WebRTC", "Marshal event %s: %v", ev.ID, err)
			continue
		}
		for _, client := range s.clients {
			select {
			case client.eventChan <- data:
				client.sent.Add(1)
			default:
				client.dropped.Add(1)
				if s.metrics != nil {
					s.metrics.EventsDropped.Add(1)
				}
			}
		}
	}
}

func (s *Server) sendEvents(client *Client) {
	select {
	case <-client.ready:
	case <-client.closeChan:
		return
	}
	for {
		select {
		case <-client.closeChan:
			return
		case data := <-client.eventChan:
			if err := client.channel.SendText(string(data)); err != nil {
				if err != io.ErrClosedPipe {
					logger.Warn("WebRTC", "Error sending event to client %s: %v", client.id, err)
				}
				return
			}
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()
	if !exists {
		return
	}

	close(client.closeChan)
	client.peerConn.Close()
	if s.metrics != nil {
		s.metrics.WebRTCClients.Add(-1)
	}
	logger.Info("WebRTC", "Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.sent.Load(), client.dropped.Load())
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
