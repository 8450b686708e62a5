package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestMemoryStoreOrderAndDrain(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Send(ctx, KindMessage, "a", "b", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	items, err := s.Drain(ctx, KindMessage, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("drained %d items, want 3", len(items))
	}
	for i, item := range items {
		if item.Payload != fmt.Sprintf("m%d", i) {
			t.Fatalf("item %d = %q, order broken", i, item.Payload)
		}
		if item.From != "a" {
			t.Fatalf("item %d from %q", i, item.From)
		}
	}

	// Drain consumed everything.
	items, _ = s.Drain(ctx, KindMessage, "b")
	if len(items) != 0 {
		t.Fatalf("second drain returned %d items", len(items))
	}
}

func TestMemoryStoreKindsIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Send(ctx, KindMessage, "a", "b", "hello")
	s.Send(ctx, KindSignal, "a", "b", `{"sdp":"x"}`)

	msgs, _ := s.Drain(ctx, KindMessage, "b")
	if len(msgs) != 1 {
		t.Fatalf("messages %d", len(msgs))
	}
	sigs, _ := s.Drain(ctx, KindSignal, "b")
	if len(sigs) != 1 {
		t.Fatalf("signals %d, draining messages must not touch signals", len(sigs))
	}
}

func TestMemoryStoreTruncatesMessagesOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	long := strings.Repeat("x", MaxMessageRunes+500)
	s.Send(ctx, KindMessage, "a", "b", long)
	s.Send(ctx, KindSignal, "a", "b", long)

	msgs, _ := s.Drain(ctx, KindMessage, "b")
	if got := len([]rune(msgs[0].Payload)); got != MaxMessageRunes {
		t.Fatalf("message length %d, want %d", got, MaxMessageRunes)
	}
	sigs, _ := s.Drain(ctx, KindSignal, "b")
	if got := len([]rune(sigs[0].Payload)); got != MaxMessageRunes+500 {
		t.Fatalf("signal length %d, signals are exempt from truncation", got)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Send(ctx, KindMessage, "a", "b", "hello")
	s.Send(ctx, KindSignal, "a", "b", "sig")

	if err := s.Clear(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	if items, _ := s.Drain(ctx, KindMessage, "b"); len(items) != 0 {
		t.Fatal("messages survived clear")
	}
	if items, _ := s.Drain(ctx, KindSignal, "b"); len(items) != 0 {
		t.Fatal("signals survived clear")
	}
}

func TestMemoryStoreConcurrentSendNoLoss(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const senders = 8
	const perSender = 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := fmt.Sprintf("s%d", i)
			for j := 0; j < perSender; j++ {
				if err := s.Send(ctx, KindMessage, from, "sink", "payload"); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()

	items, err := s.Drain(ctx, KindMessage, "sink")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != senders*perSender {
		t.Fatalf("drained %d items, want %d", len(items), senders*perSender)
	}
}
