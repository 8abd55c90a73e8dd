package router

import (
	"fmt"
	"testing"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/session"
	"quickchat/internal/store"
)

type fakeStore struct {
	msgs        []models.Message
	receipts    map[string]struct{}
	failAppend  bool
	appendCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[string]struct{})}
}

func (f *fakeStore) AppendMessage(name, text string) (*models.Message, error) {
	f.appendCalls++
	if f.failAppend {
		return nil, fmt.Errorf("%w: connection refused", store.ErrStoreUnavailable)
	}
	m := models.Message{ID: uint(len(f.msgs) + 1), Name: name, Text: text, CreatedAt: time.Now()}
	f.msgs = append(f.msgs, m)
	return &m, nil
}

func (f *fakeStore) ListRecent(limit int) ([]models.Message, error) {
	if limit > len(f.msgs) {
		limit = len(f.msgs)
	}
	return append([]models.Message(nil), f.msgs[len(f.msgs)-limit:]...), nil
}

func (f *fakeStore) RecordReadReceipt(messageID uint, reader string) (bool, error) {
	found := false
	for _, m := range f.msgs {
		if m.ID == messageID {
			found = true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("%w: id %d", store.ErrUnknownMessage, messageID)
	}
	key := fmt.Sprintf("%d|%s", messageID, reader)
	if _, ok := f.receipts[key]; ok {
		return false, nil
	}
	f.receipts[key] = struct{}{}
	return true, nil
}

type publishedEvent struct {
	v   interface{}
	aud Audience
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) Publish(v interface{}, aud Audience) {
	f.events = append(f.events, publishedEvent{v: v, aud: aud})
}

func newTestRouter(st Store) (*Router, *session.Registry, *fakePublisher) {
	reg := session.NewRegistry()
	pub := &fakePublisher{}
	return New(st, reg, pub, 50), reg, pub
}

func TestHandle_BadPayload(t *testing.T) {
	rt, _, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte("not json"))

	if out.Accepted() {
		t.Error("Handle() accepted malformed payload")
	}
	if out.Reason != DropBadPayload {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropBadPayload)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_UnknownEvent(t *testing.T) {
	rt, _, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte(`{"type":"shout","name":"bo"}`))

	if out.Reason != DropUnknownEvent {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropUnknownEvent)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_Join(t *testing.T) {
	st := newFakeStore()
	st.msgs = []models.Message{
		{ID: 1, Name: "ann", Text: "first"},
		{ID: 2, Name: "ben", Text: "second"},
	}
	rt, reg, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"join","name":"Bo"}`))

	if !out.Accepted() || out.Event != "join" {
		t.Fatalf("Handle() = %+v, want accepted join", out)
	}
	if got := reg.Name("conn-1"); got != "Bo" {
		t.Errorf("registry name = %q, want Bo", got)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2 (history + system)", len(pub.events))
	}

	// History goes to the joiner only, oldest first
	hist, ok := pub.events[0].v.(historyEvent)
	if !ok {
		t.Fatalf("first event is %T, want historyEvent", pub.events[0].v)
	}
	if len(hist.Messages) != 2 || hist.Messages[0].ID != 1 || hist.Messages[1].ID != 2 {
		t.Errorf("history = %+v, want ids [1 2]", hist.Messages)
	}
	if !pub.events[0].aud.Includes("conn-1") || pub.events[0].aud.Includes("conn-2") {
		t.Error("history audience should be the sender only")
	}

	// Join announcement goes to everyone
	sys, ok := pub.events[1].v.(systemEvent)
	if !ok {
		t.Fatalf("second event is %T, want systemEvent", pub.events[1].v)
	}
	if sys.Text != "Bo joined" {
		t.Errorf("system text = %q, want %q", sys.Text, "Bo joined")
	}
	if !pub.events[1].aud.Includes("conn-1") || !pub.events[1].aud.Includes("conn-2") {
		t.Error("system audience should include everyone")
	}
}

func TestHandle_Join_BlankNameDefaultsToAnon(t *testing.T) {
	rt, reg, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte(`{"type":"join","name":"   "}`))

	if !out.Accepted() {
		t.Fatalf("Handle() = %+v, want accepted", out)
	}
	if got := reg.Name("conn-1"); got != "Anon" {
		t.Errorf("registry name = %q, want Anon", got)
	}
	sys := pub.events[1].v.(systemEvent)
	if sys.Text != "Anon joined" {
		t.Errorf("system text = %q, want %q", sys.Text, "Anon joined")
	}
}

func TestHandle_ChatMessage(t *testing.T) {
	st := newFakeStore()
	rt, _, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"chat_message","name":"Bo","text":"hi"}`))

	if !out.Accepted() || out.Event != "chat_message" {
		t.Fatalf("Handle() = %+v, want accepted chat_message", out)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	evt, ok := pub.events[0].v.(chatEvent)
	if !ok {
		t.Fatalf("event is %T, want chatEvent", pub.events[0].v)
	}
	// Outbound payload must echo the store-assigned id and timestamp
	if evt.ID != 1 {
		t.Errorf("chat id = %d, want 1", evt.ID)
	}
	if evt.Name != "Bo" || evt.Text != "hi" {
		t.Errorf("chat payload = %+v", evt)
	}
	if evt.CreatedAt.IsZero() {
		t.Error("chat created_at is zero")
	}
	// Sender receives its own message too
	if !pub.events[0].aud.Includes("conn-1") || !pub.events[0].aud.Includes("conn-2") {
		t.Error("chat audience should include everyone, sender included")
	}
}

func TestHandle_ChatMessage_WhitespaceDropped(t *testing.T) {
	st := newFakeStore()
	rt, _, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"chat_message","name":"Bo","text":"   "}`))

	if out.Accepted() {
		t.Error("Handle() accepted whitespace-only text")
	}
	if out.Reason != DropEmptyText {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropEmptyText)
	}
	if st.appendCalls != 0 {
		t.Errorf("store called %d times, want 0", st.appendCalls)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_ChatMessage_StoreFailure(t *testing.T) {
	st := newFakeStore()
	st.failAppend = true
	rt, _, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"chat_message","name":"Bo","text":"hi"}`))

	if out.Reason != DropStoreError {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropStoreError)
	}
	// No fabricated id, no broadcast
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_Typing_NotEchoedToSender(t *testing.T) {
	rt, _, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte(`{"type":"typing","name":"Bo","is_typing":true}`))

	if !out.Accepted() {
		t.Fatalf("Handle() = %+v, want accepted", out)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	evt := pub.events[0].v.(typingEvent)
	if !evt.IsTyping || evt.Name != "Bo" {
		t.Errorf("typing payload = %+v", evt)
	}
	aud := pub.events[0].aud
	if aud.Includes("conn-1") {
		t.Error("typing delivered back to its sender")
	}
	if !aud.Includes("conn-2") {
		t.Error("typing not delivered to other participants")
	}
}

func TestHandle_Read_DuplicateRebroadcast(t *testing.T) {
	st := newFakeStore()
	st.msgs = []models.Message{{ID: 7, Name: "ann", Text: "x"}}
	rt, _, pub := newTestRouter(st)

	raw := []byte(`{"type":"read","message_id":7,"reader":"alice"}`)
	for i := 0; i < 2; i++ {
		out := rt.Handle("conn-1", raw)
		if !out.Accepted() {
			t.Fatalf("Handle() #%d = %+v, want accepted", i+1, out)
		}
	}

	// One persisted receipt, two broadcasts
	if len(st.receipts) != 1 {
		t.Errorf("receipt rows = %d, want 1", len(st.receipts))
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	for i, pe := range pub.events {
		evt, ok := pe.v.(readUpdateEvent)
		if !ok {
			t.Fatalf("event #%d is %T, want readUpdateEvent", i+1, pe.v)
		}
		if evt.MessageID != 7 || evt.Reader != "alice" {
			t.Errorf("read_update #%d = %+v", i+1, evt)
		}
		if !pe.aud.Includes("conn-1") || !pe.aud.Includes("conn-2") {
			t.Errorf("read_update #%d audience should include everyone", i+1)
		}
	}
}

func TestHandle_Read_QuotedMessageID(t *testing.T) {
	st := newFakeStore()
	st.msgs = []models.Message{{ID: 7, Name: "ann", Text: "x"}}
	rt, _, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"read","message_id":"7","reader":"alice"}`))

	if !out.Accepted() {
		t.Fatalf("Handle() = %+v, want accepted", out)
	}
	if len(pub.events) != 1 {
		t.Errorf("published %d events, want 1", len(pub.events))
	}
}

func TestHandle_Read_MalformedMessageID(t *testing.T) {
	st := newFakeStore()
	st.msgs = []models.Message{{ID: 7, Name: "ann", Text: "x"}}
	rt, _, pub := newTestRouter(st)

	for _, raw := range []string{
		`{"type":"read","message_id":"abc","reader":"alice"}`,
		`{"type":"read","reader":"alice"}`,
		`{"type":"read","message_id":"","reader":"alice"}`,
	} {
		out := rt.Handle("conn-1", []byte(raw))
		if out.Reason != DropBadMessageID {
			t.Errorf("Handle(%s) reason = %q, want %q", raw, out.Reason, DropBadMessageID)
		}
	}
	if len(st.receipts) != 0 {
		t.Errorf("receipt rows = %d, want 0", len(st.receipts))
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_Read_EmptyReader(t *testing.T) {
	st := newFakeStore()
	st.msgs = []models.Message{{ID: 7, Name: "ann", Text: "x"}}
	rt, _, pub := newTestRouter(st)

	out := rt.Handle("conn-1", []byte(`{"type":"read","message_id":7,"reader":"  "}`))

	if out.Reason != DropEmptyReader {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropEmptyReader)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_Read_UnknownMessage(t *testing.T) {
	rt, _, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte(`{"type":"read","message_id":999,"reader":"alice"}`))

	if out.Reason != DropUnknownMessage {
		t.Errorf("Handle() reason = %q, want %q", out.Reason, DropUnknownMessage)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestHandle_Leave(t *testing.T) {
	rt, _, pub := newTestRouter(newFakeStore())

	out := rt.Handle("conn-1", []byte(`{"type":"leave","name":"Bo"}`))

	if !out.Accepted() || out.Event != "leave" {
		t.Fatalf("Handle() = %+v, want accepted leave", out)
	}
	sys := pub.events[0].v.(systemEvent)
	if sys.Text != "Bo left" {
		t.Errorf("system text = %q, want %q", sys.Text, "Bo left")
	}
	if !pub.events[0].aud.Includes("conn-1") || !pub.events[0].aud.Includes("conn-2") {
		t.Error("leave announcement should go to everyone")
	}
}

func TestParseMessageID(t *testing.T) {
	tests := []struct {
		raw    string
		wantID uint
		wantOK bool
	}{
		{`7`, 7, true},
		{`"7"`, 7, true},
		{`0`, 0, false},
		{`-1`, 0, false},
		{`7.5`, 0, false},
		{`"abc"`, 0, false},
		{`""`, 0, false},
		{``, 0, false},
		{`null`, 0, false},
	}
	for _, tt := range tests {
		id, ok := parseMessageID([]byte(tt.raw))
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("parseMessageID(%q) = (%d, %v), want (%d, %v)", tt.raw, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
