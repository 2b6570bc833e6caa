package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haulnet/relay/core/feed"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/reserve"
	"github.com/haulnet/relay/internal/eventbus"
)

func waitFor(t *testing.T, pub *MockPublisher, topic string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pub.Count(topic) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("topic %s: %d messages, want %d", topic, pub.Count(topic), n)
}

func TestBridgeForwardsMatchEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := NewMockPublisher()
	matches := eventbus.New[reserve.Event]()
	defer matches.Close()

	b := NewBridge(pub)
	b.Run(ctx, matches, nil, nil)

	matches.Publish(reserve.Event{
		Match: model.Match{ID: "m1", LoadID: "l1", State: model.MatchHeld},
		At:    time.Now(),
	})
	waitFor(t, pub, feed.TopicMatches, 1)

	var got model.Match
	if err := json.Unmarshal(pub.Messages[feed.TopicMatches][0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "m1" || got.LoadID != "l1" {
		t.Errorf("forwarded match = %+v", got)
	}

	cancel()
	b.Wait()
}

func TestBridgeForwardsRunsAndPlans(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := NewMockPublisher()
	runs := eventbus.New[model.OptimizationRun]()
	plans := eventbus.New[model.RelayPlan]()
	defer runs.Close()
	defer plans.Close()

	b := NewBridge(pub)
	b.Run(ctx, nil, runs, plans)

	runs.Publish(model.OptimizationRun{ID: "r1", Status: model.SolverOptimal})
	plans.Publish(model.RelayPlan{LoadID: "l1"})

	waitFor(t, pub, feed.TopicRuns, 1)
	waitFor(t, pub, feed.TopicPlans, 1)

	cancel()
	b.Wait()
}

func TestBridgeLogsAndContinuesOnPublishFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := NewMockPublisher()
	pub.Fail = true
	runs := eventbus.New[model.OptimizationRun]()
	defer runs.Close()

	b := NewBridge(pub)
	b.Run(ctx, nil, runs, nil)

	runs.Publish(model.OptimizationRun{ID: "r1"})
	time.Sleep(20 * time.Millisecond)

	pub.mu.Lock()
	pub.Fail = false
	pub.mu.Unlock()
	runs.Publish(model.OptimizationRun{ID: "r2"})
	waitFor(t, pub, feed.TopicRuns, 1)

	cancel()
	b.Wait()
}

func TestBridgeStopsOnBusClose(t *testing.T) {
	ctx := context.Background()
	pub := NewMockPublisher()
	runs := eventbus.New[model.OptimizationRun]()

	b := NewBridge(pub)
	b.Run(ctx, nil, runs, nil)
	runs.Close()
	b.Wait()
}
