package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"cellflow/internal/events"
)

// Relay frame types. A client sends commit frames and receives committed or
// error acks correlated by requestId, plus event frames carrying the ordered
// stream.
const (
	frameCommit    = "commit"
	frameCommitted = "committed"
	frameError     = "error"
	frameEvent     = "event"
)

type frame struct {
	Type      string           `json:"type"`
	RequestID string           `json:"requestId,omitempty"`
	Seq       int64            `json:"seq,omitempty"`
	Message   string           `json:"message,omitempty"`
	Envelope  *events.Envelope `json:"envelope,omitempty"`
}

const relayWriteTimeout = 5 * time.Second

// Server exposes one notebook's log over a websocket so remote replicas can
// commit and follow without sharing the sqlite file.
type Server struct {
	log    *SQLiteLog
	logger *slog.Logger
}

func NewServer(log *SQLiteLog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{log: log, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/log/ws", s.HandleWS)
	return mux
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var writeMu sync.Mutex
	writeFrame := func(f frame) {
		raw, err := json.Marshal(f)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), relayWriteTimeout)
		defer cancel()
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.Write(ctx, websocket.MessageText, raw)
	}

	cancelAttach, err := s.log.Attach(func(c Committed) {
		env := c.Envelope
		writeFrame(frame{Type: frameEvent, Seq: c.Seq, Envelope: &env})
	})
	if err != nil {
		s.logger.Error("log attach failed", "error", err)
		return
	}
	defer cancelAttach()

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type != frameCommit || f.Envelope == nil {
			writeFrame(frame{Type: frameError, RequestID: f.RequestID, Message: "malformed commit frame"})
			continue
		}
		seq, err := s.log.CommitEnvelope(ctx, *f.Envelope)
		if err != nil {
			writeFrame(frame{Type: frameError, RequestID: f.RequestID, Message: err.Error()})
			continue
		}
		writeFrame(frame{Type: frameCommitted, RequestID: f.RequestID, Seq: seq})
	}
}
