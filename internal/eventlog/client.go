package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"cellflow/internal/events"
)

// RemoteLog is a Log backed by a relay server connection. Every event frame
// received is retained in memory so late Attach calls still replay the full
// order; the relay replays from the start of the log on connect.
type RemoteLog struct {
	notebookID string
	conn       *websocket.Conn
	logger     *slog.Logger
	readCancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	buffer  []Committed
	subs    map[int64]func(Committed)
	nextSub int64
	pending map[string]chan frame
	closed  bool
}

func Dial(ctx context.Context, url, notebookID string, logger *slog.Logger) (*RemoteLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	readCtx, readCancel := context.WithCancel(context.Background())
	l := &RemoteLog{
		notebookID: notebookID,
		conn:       conn,
		logger:     logger,
		readCancel: readCancel,
		subs:       map[int64]func(Committed){},
		pending:    map[string]chan frame{},
	}
	go l.readLoop(readCtx)
	return l, nil
}

func (l *RemoteLog) NotebookID() string { return l.notebookID }

func (l *RemoteLog) Commit(ctx context.Context, ev events.Event) (int64, error) {
	env, err := events.Wrap(l.notebookID, ev)
	if err != nil {
		return 0, err
	}

	// The event id doubles as the request id; retries of the same envelope
	// are deduplicated server-side.
	ack := make(chan frame, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, errors.New("log is closed")
	}
	l.pending[env.EventID] = ack
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, env.EventID)
		l.mu.Unlock()
	}()

	raw, err := json.Marshal(frame{Type: frameCommit, RequestID: env.EventID, Envelope: &env})
	if err != nil {
		return 0, err
	}
	l.writeMu.Lock()
	err = l.conn.Write(ctx, websocket.MessageText, raw)
	l.writeMu.Unlock()
	if err != nil {
		return 0, err
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case f := <-ack:
		if f.Type == frameError {
			return 0, fmt.Errorf("commit rejected: %s", f.Message)
		}
		return f.Seq, nil
	}
}

func (l *RemoteLog) Attach(fn func(Committed)) (func(), error) {
	if fn == nil {
		return nil, errors.New("callback is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("log is closed")
	}
	for _, c := range l.buffer {
		fn(c)
	}
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}, nil
}

func (l *RemoteLog) Close() error {
	l.mu.Lock()
	l.closed = true
	l.subs = map[int64]func(Committed){}
	l.mu.Unlock()
	l.readCancel()
	return l.conn.Close(websocket.StatusNormalClosure, "")
}

func (l *RemoteLog) readLoop(ctx context.Context) {
	for {
		_, data, err := l.conn.Read(ctx)
		if err != nil {
			l.failPending(err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.logger.Warn("malformed relay frame", "error", err)
			continue
		}
		switch f.Type {
		case frameEvent:
			if f.Envelope == nil {
				continue
			}
			c := Committed{Seq: f.Seq, Envelope: *f.Envelope}
			l.mu.Lock()
			l.buffer = append(l.buffer, c)
			for _, id := range sortedSubIDs(l.subs) {
				l.subs[id](c)
			}
			l.mu.Unlock()
		case frameCommitted, frameError:
			l.mu.Lock()
			ack := l.pending[f.RequestID]
			l.mu.Unlock()
			if ack != nil {
				ack <- f
			}
		}
	}
}

func (l *RemoteLog) failPending(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ack := range l.pending {
		select {
		case ack <- frame{Type: frameError, Message: err.Error()}:
		default:
		}
		delete(l.pending, id)
	}
}
