// Package eventlog provides the ordered, append-only, multi-writer event log
// that every replica folds into local state. The sqlite-backed log is the
// authority: its autoincrement sequence is the single total order per
// notebook. Remote replicas reach it through the websocket relay in
// server.go/client.go and observe the exact same order.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cellflow/internal/events"
)

// Committed is one log entry: the envelope plus its position in the total
// order.
type Committed struct {
	Seq      int64
	Envelope events.Envelope
}

// Log is what the core and all producers see. Commit blocks until the event
// is durable and ordered; Attach replays everything committed so far and then
// follows the live stream, in sequence order, exactly once.
//
// Callbacks run on the committer's goroutine and must not call Commit
// re-entrantly; consumers that react to events by committing new ones hand
// off to their own loop first.
type Log interface {
	NotebookID() string
	Commit(ctx context.Context, ev events.Event) (int64, error)
	Attach(fn func(Committed)) (cancel func(), err error)
	Close() error
}

// Record is the storage row for one committed event.
type Record struct {
	Seq        int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID    string `gorm:"column:event_id;not null;uniqueIndex"`
	NotebookID string `gorm:"column:notebook_id;not null;index"`
	EventType  string `gorm:"column:event_type;not null"`
	Payload    string `gorm:"column:payload;not null;default:''"`
}

func (Record) TableName() string { return "events" }

type SQLiteLog struct {
	notebookID string
	gdb        *gorm.DB

	mu      sync.Mutex
	subs    map[int64]func(Committed)
	nextSub int64
	closed  bool
}

// Open prepares the log table and returns a log for one notebook.
func Open(gdb *gorm.DB, notebookID string) (*SQLiteLog, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	if notebookID == "" {
		return nil, errors.New("notebook id is required")
	}
	if err := gdb.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &SQLiteLog{
		notebookID: notebookID,
		gdb:        gdb,
		subs:       map[int64]func(Committed){},
	}, nil
}

func (l *SQLiteLog) NotebookID() string { return l.notebookID }

func (l *SQLiteLog) Commit(ctx context.Context, ev events.Event) (int64, error) {
	env, err := events.Wrap(l.notebookID, ev)
	if err != nil {
		return 0, err
	}
	return l.CommitEnvelope(ctx, env)
}

// CommitEnvelope appends a pre-wrapped envelope, validating it at the log
// boundary so malformed payloads never reach materializers. Re-committing an
// envelope whose eventId is already present returns the original sequence,
// making producer retries idempotent.
func (l *SQLiteLog) CommitEnvelope(ctx context.Context, env events.Envelope) (int64, error) {
	if env.NotebookID != l.notebookID {
		return 0, fmt.Errorf("envelope notebook %q does not match log %q", env.NotebookID, l.notebookID)
	}
	if _, err := events.Unwrap(env); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.New("log is closed")
	}

	rec := Record{
		EventID:    env.EventID,
		NotebookID: env.NotebookID,
		EventType:  env.EventType,
		Payload:    string(env.Payload),
	}
	res := l.gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// Duplicate delivery of the same event id: report the original seq.
		var existing Record
		if err := l.gdb.WithContext(ctx).Where("event_id = ?", env.EventID).First(&existing).Error; err != nil {
			return 0, err
		}
		return existing.Seq, nil
	}

	c := Committed{Seq: rec.Seq, Envelope: env}
	for _, id := range sortedSubIDs(l.subs) {
		l.subs[id](c)
	}
	return rec.Seq, nil
}

func (l *SQLiteLog) Attach(fn func(Committed)) (func(), error) {
	if fn == nil {
		return nil, errors.New("callback is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("log is closed")
	}

	var records []Record
	if err := l.gdb.Where("notebook_id = ?", l.notebookID).Order("seq").Find(&records).Error; err != nil {
		return nil, err
	}
	for _, rec := range records {
		fn(Committed{Seq: rec.Seq, Envelope: rec.Envelope()})
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

func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.subs = map[int64]func(Committed){}
	return nil
}

// LastSeq returns the sequence of the newest committed event, 0 when empty.
func (l *SQLiteLog) LastSeq() (int64, error) {
	var records []Record
	err := l.gdb.Where("notebook_id = ?", l.notebookID).Order("seq DESC").Limit(1).Find(&records).Error
	if err != nil || len(records) == 0 {
		return 0, err
	}
	return records[0].Seq, nil
}

func (r Record) Envelope() events.Envelope {
	return events.Envelope{
		EventID:    r.EventID,
		NotebookID: r.NotebookID,
		EventType:  r.EventType,
		Payload:    []byte(r.Payload),
	}
}

func sortedSubIDs(subs map[int64]func(Committed)) []int64 {
	ids := make([]int64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
