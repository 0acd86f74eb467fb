package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"campus-chat/internal/models"
	"campus-chat/internal/presence"
)

// fakeClient records every event pushed to it.
type fakeClient struct {
	name   string
	events []models.WSEvent
	fail   bool
}

func (c *fakeClient) Send(v interface{}) error {
	if c.fail {
		return errors.New("send failed")
	}
	ev, ok := v.(models.WSEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", v)
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) eventsOf(name string) []models.WSEvent {
	var out []models.WSEvent
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

// fakeStore is an in-memory Store with store-assigned ids and strictly
// increasing creation timestamps.
type fakeStore struct {
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	seq           int
	base          time.Time

	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		base:          time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) addConversation(a, b int) *models.Conversation {
	low, high := models.PairKey(a, b)
	conv := &models.Conversation{
		ID:       fmt.Sprintf("conv-%d-%d", low, high),
		UserLow:  low,
		UserHigh: high,
	}
	s.conversations[conv.ID] = conv
	return conv
}

func (s *fakeStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return conv, nil
}

func (s *fakeStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if s.failSave {
		return errors.New("insert failed")
	}
	s.seq++
	msg.ID = fmt.Sprintf("msg-%d", s.seq)
	msg.CreatedAt = s.base.Add(time.Duration(s.seq) * time.Millisecond)

	stored := *msg
	s.messages[msg.ID] = &stored

	conv := s.conversations[msg.ConversationID]
	if conv.UserLow == msg.RecipientID {
		conv.UnreadLow++
	} else {
		conv.UnreadHigh++
	}
	return nil
}

func (s *fakeStore) MarkDelivered(ctx context.Context, messageID string) error {
	if msg, ok := s.messages[messageID]; ok {
		msg.Delivered = true
	}
	return nil
}

func (s *fakeStore) UndeliveredFor(ctx context.Context, userID int) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range s.messages {
		if msg.RecipientID == userID && !msg.Delivered {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) MarkConversationRead(ctx context.Context, conversationID string, readerID int) (int64, error) {
	var updated int64
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.RecipientID == readerID && !msg.Read {
			msg.Read = true
			updated++
		}
	}
	conv := s.conversations[conversationID]
	if conv.UserLow == readerID {
		conv.UnreadLow = 0
	} else {
		conv.UnreadHigh = 0
	}
	return updated, nil
}

func (s *fakeStore) history(conversationID string) []models.Message {
	var out []models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func setup() (*Coordinator, *fakeStore, presence.Registry) {
	store := newFakeStore()
	registry := presence.NewMemory()
	return NewCoordinator(store, registry), store, registry
}

func TestSendToOnlineRecipient(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	alice := &fakeClient{name: "alice"}
	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, alice, 1)
	coord.UserOnline(ctx, bob, 2)

	msg, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "hey"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	received := bob.eventsOf(models.EventReceiveMessage)
	if len(received) != 1 {
		t.Fatalf("expected 1 receive-message for bob, got %d", len(received))
	}
	if received[0].Message.Text != "hey" {
		t.Errorf("pushed text = %q, want %q", received[0].Message.Text, "hey")
	}

	delivered := alice.eventsOf(models.EventMessageDelivered)
	if len(delivered) != 1 || delivered[0].MessageID != msg.ID {
		t.Fatalf("expected message-delivered for %s to alice, got %+v", msg.ID, delivered)
	}

	if !msg.Delivered {
		t.Error("returned message should be marked delivered")
	}
	if !store.messages[msg.ID].Delivered {
		t.Error("stored message should be marked delivered")
	}
}

func TestOfflineRecipientSweptOnReconnect(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	alice := &fakeClient{name: "alice"}
	coord.UserOnline(ctx, alice, 1)

	// Bob is offline for both sends.
	first, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "one"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "two"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if first.Delivered || second.Delivered {
		t.Fatal("messages to an offline recipient must stay queued")
	}
	if got := len(alice.eventsOf(models.EventMessageDelivered)); got != 0 {
		t.Fatalf("no delivery receipts expected while bob is offline, got %d", got)
	}

	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)

	received := bob.eventsOf(models.EventReceiveMessage)
	if len(received) != 2 {
		t.Fatalf("sweep should replay exactly 2 messages, got %d", len(received))
	}
	if received[0].Message.Text != "one" || received[1].Message.Text != "two" {
		t.Errorf("sweep out of order: %q then %q", received[0].Message.Text, received[1].Message.Text)
	}
	for _, msg := range store.messages {
		if !msg.Delivered {
			t.Errorf("message %s still undelivered after sweep", msg.ID)
		}
	}
	if got := len(alice.eventsOf(models.EventMessageDelivered)); got != 2 {
		t.Errorf("sender should get a delivery receipt per swept message, got %d", got)
	}

	// A second reconnect finds nothing queued.
	bob2 := &fakeClient{name: "bob2"}
	coord.UserOnline(ctx, bob2, 2)
	if got := len(bob2.eventsOf(models.EventReceiveMessage)); got != 0 {
		t.Errorf("second sweep should be empty, replayed %d messages", got)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	alice := &fakeClient{name: "alice"}
	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, alice, 1)
	coord.UserOnline(ctx, bob, 2)

	if _, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "hello"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if conv.UnreadFor(2) != 1 {
		t.Fatalf("unread count for bob = %d, want 1", conv.UnreadFor(2))
	}

	updated, err := coord.MarkRead(ctx, 2, conv.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if updated != 1 {
		t.Errorf("first mark-as-read updated %d messages, want 1", updated)
	}
	if conv.UnreadFor(2) != 0 {
		t.Errorf("unread count not reset: %d", conv.UnreadFor(2))
	}
	for _, msg := range store.messages {
		if !msg.Read {
			t.Errorf("message %s not marked read", msg.ID)
		}
	}
	if got := len(alice.eventsOf(models.EventMessagesRead)); got != 1 {
		t.Errorf("sender should get messages-read, got %d events", got)
	}

	updated, err = coord.MarkRead(ctx, 2, conv.ID)
	if err != nil {
		t.Fatalf("MarkRead (repeat): %v", err)
	}
	if updated != 0 {
		t.Errorf("repeat mark-as-read updated %d messages, want 0", updated)
	}
}

func TestTypingRelayedOnlyWhenOnline(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	alice := &fakeClient{name: "alice"}
	coord.UserOnline(ctx, alice, 1)

	// Recipient offline: dropped, nothing stored.
	coord.Typing(ctx, 1, conv.ID, 2, true)
	if len(store.messages) != 0 {
		t.Fatal("typing must not persist anything")
	}

	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)
	coord.Typing(ctx, 1, conv.ID, 2, true)

	typing := bob.eventsOf(models.EventUserTyping)
	if len(typing) != 1 {
		t.Fatalf("expected 1 user-typing event, got %d", len(typing))
	}
	if typing[0].ConversationID != conv.ID || !typing[0].IsTyping {
		t.Errorf("unexpected typing payload: %+v", typing[0])
	}
	if len(store.messages) != 0 {
		t.Error("typing must not persist anything")
	}
}

func TestSendRejectsNonParticipant(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	if _, err := coord.SendMessage(ctx, 3, SendInput{ConversationID: conv.ID, Text: "hi"}); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("outsider send: got %v, want ErrConversationNotFound", err)
	}
	if _, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: "missing", Text: "hi"}); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("missing conversation: got %v, want ErrConversationNotFound", err)
	}
	if _, err := coord.MarkRead(ctx, 3, conv.ID); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("outsider mark-as-read: got %v, want ErrConversationNotFound", err)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	coord, store, _ := setup()
	conv := store.addConversation(1, 2)

	if _, err := coord.SendMessage(context.Background(), 1, SendInput{ConversationID: conv.ID}); !errors.Is(err, models.ErrEmptyMessage) {
		t.Errorf("got %v, want ErrEmptyMessage", err)
	}
	if len(store.messages) != 0 {
		t.Error("nothing should be persisted for an empty message")
	}
}

func TestStoreFailureSurfaced(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)

	store.failSave = true
	if _, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "hi"}); err == nil {
		t.Fatal("expected error from failing store")
	}
	if got := len(bob.eventsOf(models.EventReceiveMessage)); got != 0 {
		t.Errorf("no push may happen when persist fails, got %d", got)
	}
}

func TestHistoryOrderIndependentOfRecipientState(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()
	conv := store.addConversation(1, 2)

	// First send with bob offline, second with bob online.
	if _, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "first"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)
	if _, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "second"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	history := store.history(conv.ID)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Text != "first" || history[1].Text != "second" {
		t.Errorf("history out of order: %q then %q", history[0].Text, history[1].Text)
	}
	if !history[0].CreatedAt.Before(history[1].CreatedAt) {
		t.Error("creation timestamps must be strictly increasing")
	}
}

// Mirrors the full offline-then-reconnect conversation lifecycle.
func TestEndToEndOfflineDelivery(t *testing.T) {
	coord, store, _ := setup()
	ctx := context.Background()

	alice := &fakeClient{name: "alice"}
	coord.UserOnline(ctx, alice, 1)

	conv := store.addConversation(1, 2)
	if conv.UnreadFor(1) != 0 || conv.UnreadFor(2) != 0 {
		t.Fatal("new conversation must start with zero unread counts")
	}

	msg, err := coord.SendMessage(ctx, 1, SendInput{ConversationID: conv.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Delivered || msg.Read {
		t.Fatal("message to offline bob must start undelivered and unread")
	}
	if conv.UnreadFor(2) != 1 {
		t.Fatalf("bob's unread count = %d, want 1", conv.UnreadFor(2))
	}

	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)

	received := bob.eventsOf(models.EventReceiveMessage)
	if len(received) != 1 || received[0].Message.Text != "hello" {
		t.Fatalf("bob should receive exactly the hello message, got %+v", received)
	}
	if !store.messages[msg.ID].Delivered {
		t.Error("delivered flag not persisted by sweep")
	}
	if len(alice.eventsOf(models.EventMessageDelivered)) != 1 {
		t.Error("alice should get a delivery receipt")
	}

	if _, err := coord.MarkRead(ctx, 2, conv.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !store.messages[msg.ID].Read {
		t.Error("read flag not persisted")
	}
	if conv.UnreadFor(2) != 0 {
		t.Error("unread counter not reset")
	}
	if len(alice.eventsOf(models.EventMessagesRead)) != 1 {
		t.Error("alice should get messages-read")
	}
}

func TestStatusBroadcastOnConnectAndDisconnect(t *testing.T) {
	coord, _, _ := setup()
	ctx := context.Background()

	alice := &fakeClient{name: "alice"}
	coord.UserOnline(ctx, alice, 1)

	bob := &fakeClient{name: "bob"}
	coord.UserOnline(ctx, bob, 2)

	// Alice sees her own announcement first, then bob's.
	statuses := alice.eventsOf(models.EventUserStatusChange)
	if len(statuses) != 2 || statuses[1].UserID != 2 || !statuses[1].Online {
		t.Fatalf("alice should see bob come online, got %+v", statuses)
	}

	coord.Disconnect(ctx, bob)
	statuses = alice.eventsOf(models.EventUserStatusChange)
	if len(statuses) != 3 || statuses[2].UserID != 2 || statuses[2].Online {
		t.Fatalf("alice should see bob go offline, got %+v", statuses)
	}
}

// A stale disconnect from a replaced connection must not knock the
// reconnected user offline.
func TestStaleDisconnectIgnored(t *testing.T) {
	coord, _, registry := setup()
	ctx := context.Background()

	old := &fakeClient{name: "tab-1"}
	coord.UserOnline(ctx, old, 1)
	replacement := &fakeClient{name: "tab-2"}
	coord.UserOnline(ctx, replacement, 1)

	coord.Disconnect(ctx, old)
	if !registry.Online(1) {
		t.Fatal("user must stay online through the replaced connection")
	}
	if got, _ := registry.Get(1); got != presence.Client(replacement) {
		t.Fatal("replacement connection must remain registered")
	}
}
