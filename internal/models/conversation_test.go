package models

import "testing"

func TestPairKeyNormalizes(t *testing.T) {
	for _, tc := range []struct {
		a, b, low, high int
	}{
		{1, 2, 1, 2},
		{2, 1, 1, 2},
		{5, 5, 5, 5},
	} {
		low, high := PairKey(tc.a, tc.b)
		if low != tc.low || high != tc.high {
			t.Errorf("PairKey(%d, %d) = (%d, %d), want (%d, %d)", tc.a, tc.b, low, high, tc.low, tc.high)
		}
	}
}

func TestConversationParticipants(t *testing.T) {
	conv := &Conversation{UserLow: 1, UserHigh: 9, UnreadLow: 2, UnreadHigh: 7}

	if !conv.HasParticipant(1) || !conv.HasParticipant(9) {
		t.Error("both participants should be members")
	}
	if conv.HasParticipant(3) {
		t.Error("non-member reported as participant")
	}
	if got := conv.OtherParticipant(1); got != 9 {
		t.Errorf("OtherParticipant(1) = %d, want 9", got)
	}
	if got := conv.OtherParticipant(9); got != 1 {
		t.Errorf("OtherParticipant(9) = %d, want 1", got)
	}
	if got := conv.UnreadFor(1); got != 2 {
		t.Errorf("UnreadFor(1) = %d, want 2", got)
	}
	if got := conv.UnreadFor(9); got != 7 {
		t.Errorf("UnreadFor(9) = %d, want 7", got)
	}
}

func TestMessageHasContent(t *testing.T) {
	if (&Message{}).HasContent() {
		t.Error("empty message should have no content")
	}
	if !(&Message{Text: "hi"}).HasContent() {
		t.Error("text message should have content")
	}
	if !(&Message{MediaURL: "http://x/y.png", Type: MessageTypeImage}).HasContent() {
		t.Error("media message should have content")
	}
}
