package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
	"github.com/manpreetbhatti/codecollab/internal/ratelimit"
	"github.com/manpreetbhatti/codecollab/internal/room"
)

// Checker compares submitted code with an exercise's solution
type Checker interface {
	IsCorrect(ctx context.Context, exerciseID, code string) (bool, error)
}

// SolveRecorder persists successful solutions. Optional.
type SolveRecorder interface {
	RecordSolve(ctx context.Context, exerciseID, connectionID string) error
}

type Config struct {
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultConfig() Config {
	return Config{
		MessagesPerSecond: 100,
		MessageBurst:      200,
	}
}

// Hub owns the room coordinator and the set of live clients. Every room
// mutation happens on the Run goroutine, in the order events arrive.
type Hub struct {
	coord    *room.Coordinator
	checker  Checker
	recorder SolveRecorder
	logger   *slog.Logger
	limiters *ratelimit.Keyed

	// Live clients by connection id, owned by Run
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *Inbound
	results    chan checkResult
	expire     chan expireRequest

	// Guards coord against readers outside Run
	mu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// checkMu orders checks.Add against Stop's Wait
	checkMu  sync.Mutex
	stopping bool
	checks   sync.WaitGroup
}

// Inbound is a decoded client event
type Inbound struct {
	Client  *Client
	Event   protocol.Event
	Payload any
}

type checkResult struct {
	req     room.CheckRequest
	correct bool
	err     error
}

type expireRequest struct {
	cutoff time.Time
	reply  chan int
}

func NewHub(coord *room.Coordinator, checker Checker, recorder SolveRecorder, cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		coord:      coord,
		checker:    checker,
		recorder:   recorder,
		logger:     logger,
		limiters:   ratelimit.NewKeyed(cfg.MessagesPerSecond, cfg.MessageBurst, 10*time.Minute),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Inbound, 256),
		results:    make(chan checkResult, 64),
		expire:     make(chan expireRequest),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client.id] = client
			h.apply(func() []room.Output { return h.coord.Connect(client.id) })
			h.logger.Debug("client connected", "conn_id", client.id, "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.limiters.Remove(client.id)
			h.apply(func() []room.Output { return h.coord.Leave(client.id) })
			h.logger.Debug("client disconnected", "conn_id", client.id, "clients", len(h.clients))

		case in := <-h.inbound:
			h.handle(in)

		case res := <-h.results:
			h.finishCheck(res)

		case req := <-h.expire:
			var ids []string
			h.apply(func() []room.Output {
				var out []room.Output
				ids, out = h.coord.ExpireIdle(req.cutoff)
				return out
			})
			req.reply <- len(ids)

		case <-h.done:
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			return
		}
	}
}

// Stop ends Run, closes every client and waits for in-flight checks
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.checkMu.Lock()
		h.stopping = true
		h.checkMu.Unlock()

		close(h.done)
		h.cancel()
	})
	h.checks.Wait()
	h.limiters.Stop()
}

func (h *Hub) handle(in *Inbound) {
	connID := in.Client.id

	switch in.Event {
	case protocol.EventJoinRoom:
		p := in.Payload.(*protocol.JoinRoom)
		h.apply(func() []room.Output { return h.coord.Join(connID, p.RoomID) })

	case protocol.EventCodeChange:
		p := in.Payload.(*protocol.CodeChange)
		var req *room.CheckRequest
		h.apply(func() []room.Output {
			var out []room.Output
			out, req = h.coord.Edit(connID, p.RoomID, p.Code)
			return out
		})
		h.startCheck(req)

	case protocol.EventCheckSolution:
		p := in.Payload.(*protocol.CodeChange)
		h.mu.Lock()
		req := h.coord.Check(connID, p.RoomID, p.Code)
		h.mu.Unlock()
		h.startCheck(req)

	default:
		h.logger.Warn("unhandled event", "conn_id", connID, "event", in.Event)
	}
}

// startCheck runs the solution lookup off the Run goroutine. The result
// comes back through h.results and is applied against whatever state the
// coordinator is in by then.
func (h *Hub) startCheck(req *room.CheckRequest) {
	if req == nil || h.checker == nil {
		return
	}
	r := *req

	h.checkMu.Lock()
	if h.stopping {
		h.checkMu.Unlock()
		return
	}
	h.checks.Add(1)
	h.checkMu.Unlock()

	go func() {
		defer h.checks.Done()

		correct, err := h.checker.IsCorrect(h.ctx, r.RoomID, r.Code)
		if err == nil && correct && h.recorder != nil {
			if rerr := h.recorder.RecordSolve(h.ctx, r.RoomID, r.ConnID); rerr != nil {
				h.logger.Error("failed to record solve", "room_id", r.RoomID, "conn_id", r.ConnID, "error", rerr)
			}
		}

		select {
		case h.results <- checkResult{req: r, correct: correct, err: err}:
		case <-h.done:
		}
	}()
}

func (h *Hub) finishCheck(res checkResult) {
	if res.err != nil {
		h.logger.Error("solution check failed",
			"room_id", res.req.RoomID,
			"conn_id", res.req.ConnID,
			"error", res.err)
		h.apply(func() []room.Output { return h.coord.CheckFailed(res.req, "could not check solution") })
		return
	}

	if res.correct {
		h.logger.Info("solution correct", "room_id", res.req.RoomID, "conn_id", res.req.ConnID)
	}
	h.apply(func() []room.Output { return h.coord.SolutionResult(res.req, res.correct) })
}

// apply runs a coordinator transition under the write lock, then delivers
// its outputs once the mutation has committed
func (h *Hub) apply(transition func() []room.Output) {
	h.mu.Lock()
	outputs := transition()
	h.mu.Unlock()

	h.deliver(outputs)
}

func (h *Hub) deliver(outputs []room.Output) {
	for _, o := range outputs {
		data, err := protocol.Encode(o.Message)
		if err != nil {
			h.logger.Error("failed to encode message", "event", o.Message.Event, "error", err)
			continue
		}

		for _, id := range o.Recipients {
			client, ok := h.clients[id]
			if !ok {
				continue
			}
			select {
			case client.send <- data:
			default:
				// Slow consumer; its read pump will unregister it
				h.logger.Warn("client send buffer full, dropping", "conn_id", id)
				close(client.send)
				delete(h.clients, id)
			}
		}
	}
}

// ExpireIdle asks Run to expire rooms idle since cutoff and returns how
// many were removed
func (h *Hub) ExpireIdle(cutoff time.Time) int {
	req := expireRequest{cutoff: cutoff, reply: make(chan int, 1)}
	select {
	case h.expire <- req:
	case <-h.done:
		return 0
	}
	select {
	case n := <-req.reply:
		return n
	case <-h.done:
		return 0
	}
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coord.Snapshot().Rooms
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coord.Snapshot().Connections
}

// GetActiveRooms maps each live room to its number of connected members
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.coord.Snapshot().Members
}
