package eventbus

import (
	"errors"
	"testing"
)

func TestPublishDispatchesToAllSubscribersInOrder(t *testing.T) {
	b := New()
	var order []int
	b.Subscribe(KindSignalDetected, func(Event) error { order = append(order, 1); return nil })
	b.Subscribe(KindSignalDetected, func(Event) error { order = append(order, 2); return nil })

	err := b.Publish(SignalDetected{Tenant: "t1", AccountID: "a1", SignalID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected handlers to run in registration order, got %v", order)
	}
}

func TestPublishRunsEveryHandlerDespiteAFailure(t *testing.T) {
	b := New()
	ran := false
	b.Subscribe(KindLifecycleStateChanged, func(Event) error { return errors.New("first handler failed") })
	b.Subscribe(KindLifecycleStateChanged, func(Event) error { ran = true; return nil })

	err := b.Publish(LifecycleStateChanged{Tenant: "t1", AccountID: "a1", From: "PROSPECT", To: "SUSPECT"})
	if err == nil {
		t.Fatal("expected the first handler's error to be returned")
	}
	if !ran {
		t.Fatal("expected the second handler to still run despite the first failing")
	}
}

func TestPublishIgnoresUnsubscribedKinds(t *testing.T) {
	b := New()
	err := b.Publish(ConnectorPollCompleted{Tenant: "t1", AccountID: "a1", Connector: "crm", Batches: 2})
	if err != nil {
		t.Fatalf("expected no error publishing to a kind with no subscribers, got %v", err)
	}
}

func TestPartitionKeyFormat(t *testing.T) {
	e := SignalDetected{Tenant: "t1", AccountID: "a1", SignalID: "s1"}
	if e.PartitionKey() != "t1/a1" {
		t.Fatalf("expected partition key t1/a1, got %s", e.PartitionKey())
	}
}
