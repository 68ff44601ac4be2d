package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/blockedby/herald/internal/logger"
)

// MockNATSClient mocks the nats client operations we need
type MockNATSClient struct {
	PublishedSubject string
	PublishedData    []byte
	PublishError     error
}

func (m *MockNATSClient) Publish(subject string, data []byte) error {
	m.PublishedSubject = subject
	m.PublishedData = data
	return m.PublishError
}

func TestPublisher_TargetDiscovered(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &Publisher{nc: mock, log: logger.Nop()}

	pub.TargetDiscovered(context.Background(), 42, "+1234567890", -100555)

	if mock.PublishedSubject != SubjectTargetDiscovered {
		t.Errorf("subject = %s, want %s", mock.PublishedSubject, SubjectTargetDiscovered)
	}

	var got TargetDiscoveredEvent
	if err := json.Unmarshal(mock.PublishedData, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.OwnerID != 42 || got.Phone != "+1234567890" || got.ChatID != -100555 {
		t.Errorf("event = %+v", got)
	}
	if got.DiscoveredAt.IsZero() {
		t.Error("DiscoveredAt should be set")
	}
}

func TestPublisher_BroadcastCycle(t *testing.T) {
	mock := &MockNATSClient{}
	pub := &Publisher{nc: mock, log: logger.Nop()}

	pub.BroadcastCycle(context.Background(), 42, "+1234567890", 7, 1)

	if mock.PublishedSubject != SubjectBroadcastCycle {
		t.Errorf("subject = %s, want %s", mock.PublishedSubject, SubjectBroadcastCycle)
	}

	var got BroadcastCycleEvent
	if err := json.Unmarshal(mock.PublishedData, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.Sent != 7 || got.Failed != 1 {
		t.Errorf("event = %+v", got)
	}
}

func TestPublisher_PublishErrorIsSwallowed(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("broker down")}
	pub := &Publisher{nc: mock, log: logger.Nop()}

	// must not panic or block the caller
	pub.BroadcastCycle(context.Background(), 42, "+1234567890", 0, 0)
}
