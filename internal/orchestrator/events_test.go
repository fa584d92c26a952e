package orchestrator

import (
	"context"
	"testing"
)

func TestNilEventBusDropsEvents(t *testing.T) {
	var bus *EventBus
	if err := bus.Publish(context.Background(), &RunEvent{RunID: "r", Kind: EventPlan}); err != nil {
		t.Errorf("publish on nil bus: %v", err)
	}
	if _, ok := <-bus.Subscribe(context.Background(), "r"); ok {
		t.Error("nil bus subscription should be closed")
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}
