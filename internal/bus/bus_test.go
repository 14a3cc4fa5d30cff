package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/open-insurance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(context.Background(), domain.TopicQuoteRequested, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), domain.TopicQuoteRequested, []byte(`{"quoteId":"q1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Topic != domain.TopicQuoteRequested {
			t.Errorf("topic = %s, want %s", msg.Topic, domain.TopicQuoteRequested)
		}
		if string(msg.Payload) != `{"quoteId":"q1"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
		if msg.ID == "" {
			t.Error("expected a message ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	var mu sync.Mutex
	var got []string
	_, err := b.Subscribe(context.Background(), domain.TopicQuoteRated, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		got = append(got, msg.Topic)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), domain.TopicQuoteRejected, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicQuoteRated, []byte("y")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for message")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != domain.TopicQuoteRated {
		t.Errorf("got topics %v, want only %s", got, domain.TopicQuoteRated)
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		done := false
		_, err := b.Subscribe(context.Background(), domain.TopicFactorAdmitted, func(ctx context.Context, msg *domain.Message) error {
			if !done {
				done = true
				wg.Done()
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	if err := b.Publish(context.Background(), domain.TopicFactorAdmitted, []byte("f")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ok := make(chan struct{})
	go func() {
		wg.Wait()
		close(ok)
	}()
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("not all subscribers received the message")
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	received := make(chan struct{}, 10)
	sub, err := b.Subscribe(context.Background(), domain.TopicQuoteRequested, func(ctx context.Context, msg *domain.Message) error {
		received <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	if err := b.Publish(context.Background(), domain.TopicQuoteRequested, []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-received:
		t.Error("received a message after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelBusRequestReply(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	_, err := b.Subscribe(context.Background(), "kestrel.echo", func(ctx context.Context, msg *domain.Message) error {
		replyTo := msg.Topic + ".reply"
		// The requester listens on a generated reply topic; find it by
		// convention from the live subscriptions.
		b.mu.RLock()
		for topic := range b.subscriptions {
			if len(topic) > len(replyTo) && topic[:len(replyTo)] == replyTo {
				replyTo = topic
				break
			}
		}
		b.mu.RUnlock()
		return b.Publish(ctx, replyTo, append([]byte("echo:"), msg.Payload...))
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := b.Request(ctx, "kestrel.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("reply = %s, want echo:ping", reply)
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(10)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := b.Publish(context.Background(), domain.TopicQuoteRequested, []byte("x")); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe(context.Background(), domain.TopicQuoteRequested, nil); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	if err := b.Ping(context.Background()); err == nil {
		t.Error("expected ping on closed bus to fail")
	}

	// Closing twice is fine.
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestChannelBusRequiresTopic(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()

	if err := b.Publish(context.Background(), "", []byte("x")); err == nil {
		t.Error("expected error for empty topic")
	}
	if _, err := b.Subscribe(context.Background(), "", nil); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*ChannelBus); !ok {
		t.Errorf("expected *ChannelBus, got %T", b)
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported bus type")
	}
}
