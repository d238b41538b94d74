package events

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	ev := &CellCreated{ID: "cell-1", CellType: CellTypeCode, Position: "i", CreatedBy: "alice", CreatedAt: 42}
	env, err := Wrap("nb-1", ev)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if env.EventID == "" || env.NotebookID != "nb-1" || env.EventType != TypeCellCreated {
		t.Fatalf("unexpected envelope %+v", env)
	}

	decoded, err := Unwrap(env)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	got, ok := decoded.(*CellCreated)
	if !ok {
		t.Fatalf("decoded type %T", decoded)
	}
	if *got != *ev {
		t.Fatalf("round trip changed event: %+v vs %+v", got, ev)
	}
}

func TestWrapRejectsInvalidEvent(t *testing.T) {
	if _, err := Wrap("nb-1", &CellCreated{}); err == nil {
		t.Fatalf("expected validation error for empty event")
	}
	if _, err := Wrap("", &NotebookTitleChanged{Title: "x", ChangedBy: "a"}); err == nil {
		t.Fatalf("expected error for missing notebook id")
	}
}

func TestUnwrapRejectsUnknownType(t *testing.T) {
	env := Envelope{EventID: "e1", NotebookID: "nb-1", EventType: "SomethingElse", Payload: []byte(`{}`)}
	if _, err := Unwrap(env); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestUnwrapValidatesPayload(t *testing.T) {
	env := Envelope{EventID: "e1", NotebookID: "nb-1", EventType: TypeCellCreated, Payload: []byte(`{}`)}
	if _, err := Unwrap(env); err == nil {
		t.Fatalf("expected validation error for empty payload")
	}
}

func TestEveryRegisteredTypeHasConstant(t *testing.T) {
	names := Types()
	if len(names) != 25 {
		t.Fatalf("registered %d event types, want 25", len(names))
	}
}

func TestCellCreatedRequiresOrderedPosition(t *testing.T) {
	bad := &CellCreated{ID: "c", CellType: CellTypeCode, Position: "", CreatedBy: "a", CreatedAt: 1}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for missing position")
	}
}

func TestMediaContainerText(t *testing.T) {
	text, ok := InlineText("hello").Text()
	if !ok || text != "hello" {
		t.Fatalf("inline text = %q, %v", text, ok)
	}

	jsonContainer, err := InlineJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("inline json: %v", err)
	}
	raw, ok := jsonContainer.Text()
	if !ok || raw != `{"a":1}` {
		t.Fatalf("inline json text = %q, %v", raw, ok)
	}

	if _, ok := Artifact("art-1").Text(); ok {
		t.Fatalf("artifact container should have no text")
	}
}

func TestEnvelopeJSONUsesCamelCase(t *testing.T) {
	env, err := Wrap("nb-1", &NotebookTitleChanged{Title: "t", ChangedBy: "alice"})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"eventId"`, `"notebookId"`, `"eventType"`, `"payload"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("envelope json missing %s: %s", key, raw)
		}
	}
	if !strings.Contains(string(raw), `"changedBy"`) {
		t.Fatalf("payload not camelCase: %s", raw)
	}
}

func TestRepresentationsValidation(t *testing.T) {
	ev := &MultimediaResultOutputAdded{
		ID:             "o1",
		CellID:         "c1",
		ExecutionCount: 1,
		Position:       1,
	}
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected error for missing representations")
	}
	ev.Representations = map[string]MediaContainer{"text/plain": InlineText("x")}
	if err := ev.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
