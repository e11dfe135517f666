package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/internal/metrics"
	"github.com/anusha9573/SmartRefridgerator/internal/overlay"
	"github.com/anusha9573/SmartRefridgerator/internal/pipeline"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// fanout delivers values to subscribed clients. Each client has a small
// buffer; a client that falls behind misses values instead of blocking the
// sender.
type fanout[T any] struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
	dropped func()
}

func newFanout[T any](name string, dropped func()) *fanout[T] {
	return &fanout[T]{
		name:    name,
		clients: make(map[int]chan T),
		dropped: dropped,
	}
}

func (f *fanout[T]) subscribe() (int, <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan T, 2)
	f.clients[id] = ch
	logger.Debug(f.name, "Client #%d subscribed (total clients: %d)", id, len(f.clients))
	return id, ch
}

func (f *fanout[T]) unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.clients[id]; ok {
		close(ch)
		delete(f.clients, id)
		logger.Debug(f.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(f.clients))
	}
}

func (f *fanout[T]) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fanout[T]) broadcast(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.clients {
		select {
		case ch <- v:
		default:
			if f.dropped != nil {
				f.dropped()
			}
			logger.Debug(f.name, "Client #%d is slow, dropping", id)
		}
	}
}

func (f *fanout[T]) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.clients {
		close(ch)
		delete(f.clients, id)
	}
}

// SerializedEvent holds one payload pre-serialized in both wire formats so
// it is encoded once regardless of how many clients receive it.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // google.protobuf.Struct, base64 encoded for SSE
}

func serializeEvent(payload any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "json marshal")
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, errors.Wrap(err, "payload is not a JSON object")
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "build protobuf struct")
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "protobuf marshal")
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// FrameBroadcaster renders annotated JPEG frames for MJPEG clients. Frames
// are only rendered while at least one client is connected, and only the
// newest pending result is kept.
type FrameBroadcaster struct {
	clients *fanout[[]byte]
	pending chan pipeline.Result
	quality int
	header  bool

	mu        sync.Mutex
	stop      chan struct{}
	stopped   bool
	skipCount int
}

// NewFrameBroadcaster creates a broadcaster encoding at the given JPEG quality.
func NewFrameBroadcaster(quality int, header bool) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: newFanout[[]byte]("FrameBroadcaster", nil),
		pending: make(chan pipeline.Result, 1),
		quality: quality,
		header:  header,
		stop:    make(chan struct{}),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	return fb.clients.subscribe()
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.clients.unsubscribe(id)
	if fb.clients.count() == 0 {
		logger.Info("FrameBroadcaster", "No clients remaining - frame rendering will be skipped")
	}
}

// Offer hands a frame result to the render loop without blocking. An older
// pending result is replaced.
func (fb *FrameBroadcaster) Offer(res pipeline.Result) {
	if fb.clients.count() == 0 {
		fb.mu.Lock()
		fb.skipCount++
		fb.mu.Unlock()
		return
	}
	for {
		select {
		case fb.pending <- res:
			return
		default:
		}
		select {
		case <-fb.pending:
		default:
		}
	}
}

// Start begins the render and broadcast loop.
func (fb *FrameBroadcaster) Start() {
	go fb.run()
}

// Stop halts the broadcaster and disconnects its clients.
func (fb *FrameBroadcaster) Stop() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if !fb.stopped {
		close(fb.stop)
		fb.stopped = true
		fb.clients.closeAll()
	}
}

func (fb *FrameBroadcaster) run() {
	for {
		select {
		case <-fb.stop:
			return
		case res := <-fb.pending:
			img := overlay.Render(res.Scene(fb.header))
			data, err := overlay.JPEG(img, fb.quality)
			if err != nil {
				logger.Warn("FrameBroadcaster", "JPEG encode failed for frame %d: %v", res.Frame.FrameNum, err)
				continue
			}
			fb.clients.broadcast(data)
		}
	}
}

// EventBroadcaster fans crossing events out to SSE clients.
type EventBroadcaster struct {
	clients *fanout[*SerializedEvent]
}

// NewEventBroadcaster creates an event broadcaster. Events a slow client
// misses are counted in m when it is non-nil.
func NewEventBroadcaster(m *metrics.Metrics) *EventBroadcaster {
	var dropped func()
	if m != nil {
		dropped = func() { m.EventsDropped.Add(1) }
	}
	return &EventBroadcaster{clients: newFanout[*SerializedEvent]("EventBroadcaster", dropped)}
}

// Subscribe adds a new client.
func (eb *EventBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	return eb.clients.subscribe()
}

// Unsubscribe removes a client.
func (eb *EventBroadcaster) Unsubscribe(id int) {
	eb.clients.unsubscribe(id)
}

// Broadcast serializes each event once and delivers it to every client.
func (eb *EventBroadcaster) Broadcast(events []types.CrossingEvent) {
	if len(events) == 0 || eb.clients.count() == 0 {
		return
	}
	for _, ev := range events {
		se, err := serializeEvent(ev)
		if err != nil {
			logger.Error("EventBroadcaster", "Serialize event %s: %v", ev.ID, err)
			continue
		}
		eb.clients.broadcast(se)
	}
}

// Stop disconnects every client.
func (eb *EventBroadcaster) Stop() {
	eb.clients.closeAll()
}

// StatusBroadcaster periodically publishes the monitor snapshot.
type StatusBroadcaster struct {
	clients  *fanout[*SerializedEvent]
	monitor  *Monitor
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

// NewStatusBroadcaster creates a status broadcaster ticking at interval.
func NewStatusBroadcaster(monitor *Monitor, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  newFanout[*SerializedEvent]("StatusBroadcaster", nil),
		monitor:  monitor,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Subscribe adds a new client. The current snapshot is queued immediately.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	id, ch := sb.clients.subscribe()
	if ev := sb.snapshot(); ev != nil {
		sb.clients.mu.Lock()
		if c, ok := sb.clients.clients[id]; ok {
			select {
			case c <- ev:
			default:
			}
		}
		sb.clients.mu.Unlock()
	}
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.clients.unsubscribe(id)
}

// Start begins the ticker loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster and disconnects its clients.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if !sb.stopped {
		close(sb.stop)
		sb.stopped = true
		sb.clients.closeAll()
	}
}

func (sb *StatusBroadcaster) run() {
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			if sb.clients.count() == 0 {
				continue
			}
			if ev := sb.snapshot(); ev != nil {
				sb.clients.broadcast(ev)
			}
		}
	}
}

func (sb *StatusBroadcaster) snapshot() *SerializedEvent {
	ev, err := serializeEvent(sb.monitor.Snapshot())
	if err != nil {
		logger.Error("StatusBroadcaster", "Serialize status: %v", err)
		return nil
	}
	return ev
}
