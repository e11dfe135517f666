package webrtc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

func TestHandleOfferRejectsBadInput(t *testing.T) {
	s := NewServer(Config{}, nil)
	defer s.Close()

	cases := map[string]string{
		"not json":   "{",
		"answer":     `{"type":"answer","sdp":"v=0"}`,
		"empty sdp":  `{"type":"offer","sdp":""}`,
		"empty body": `{}`,
	}
	for name, body := range cases {
		if _, err := s.HandleOffer([]byte(body)); !errors.Is(err, ErrInvalidOffer) {
			t.Fatalf("%s: err = %v, want ErrInvalidOffer", name, err)
		}
	}
}

func TestServeHTTPStatusCodes(t *testing.T) {
	s := NewServer(DefaultConfig(), nil)
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webrtc/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webrtc/offer", strings.NewReader(`{"type":"answer"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad offer code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid offer") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestPublishWithoutClientsIsNoop(t *testing.T) {
	m := metrics.New()
	s := NewServer(DefaultConfig(), m)
	defer s.Close()

	s.Publish(pipeline.Result{Events: []types.CrossingEvent{{ID: "x", Label: "milk", Direction: types.Added}}})
	if s.GetClientCount() != 0 || m.EventsDropped.Load() != 0 {
		t.Fatalf("clients=%d dropped=%d", s.GetClientCount(), m.EventsDropped.Load())
	}
}

func TestPublishDropsForFullClient(t *testing.T) {
	m := metrics.New()
	s := NewServer(DefaultConfig(), m)
	c := &Client{id: "c1", eventChan: make(chan []byte, 1), closeChan: make(chan struct{})}
	s.clients[c.id] = c

	evs := []types.CrossingEvent{{ID: "1", Label: "milk"}, {ID: "2", Label: "milk"}}
	s.Publish(pipeline.Result{Events: evs})

	if c.sent.Load() != 1 || c.dropped.Load() != 1 || m.EventsDropped.Load() != 1 {
		t.Fatalf("sent=%d dropped=%d metric=%d", c.sent.Load(), c.dropped.Load(), m.EventsDropped.Load())
	}
	if got := string(<-c.eventChan); !strings.Contains(got, `"id":"1"`) {
		t.Fatalf("queued = %s", got)
	}
}
