package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/haulnet/relay/core/feed"
	"github.com/haulnet/relay/core/logger"
	"github.com/haulnet/relay/core/model"
	"github.com/haulnet/relay/core/reserve"
	infralog "github.com/haulnet/relay/infra/logger"
	"github.com/haulnet/relay/internal/eventbus"
)

// Bridge forwards in-process engine events to broker topics so external
// consumers (driver apps, load boards, dashboards) see match, plan and run
// activity without coupling to the engine.
type Bridge struct {
	pub feed.Publisher
	log logger.Logger
	wg  sync.WaitGroup
}

// NewBridge creates a Bridge over the given publisher.
func NewBridge(pub feed.Publisher) *Bridge {
	return &Bridge{pub: pub, log: infralog.New("bridge")}
}

// Run forwards events from each bus until the context is cancelled. Nil
// buses are skipped.
func (b *Bridge) Run(
	ctx context.Context,
	matches *eventbus.Bus[reserve.Event],
	runs *eventbus.Bus[model.OptimizationRun],
	plans *eventbus.Bus[model.RelayPlan],
) {
	if matches != nil {
		forward(ctx, b, matches, feed.TopicMatches, func(e reserve.Event) any { return e.Match })
	}
	if runs != nil {
		forward(ctx, b, runs, feed.TopicRuns, func(r model.OptimizationRun) any { return r })
	}
	if plans != nil {
		forward(ctx, b, plans, feed.TopicPlans, func(p model.RelayPlan) any { return p })
	}
}

// Wait blocks until all forwarding goroutines exit.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func forward[T any](ctx context.Context, b *Bridge, bus *eventbus.Bus[T], topic string, payload func(T) any) {
	sub := bus.Subscribe()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := b.pub.Publish(topic, payload(ev)); err != nil {
					b.log.Errorf("publish %s: %v", topic, err)
				}
			}
		}
	}()
}

// MockPublisher records published payloads for tests.
type MockPublisher struct {
	mu       sync.Mutex
	Messages map[string][][]byte
	Fail     bool
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string][][]byte)}
}

// Publish records the JSON-encoded payload or fails when configured to.
func (m *MockPublisher) Publish(topic string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return feed.ErrNotConnected
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.Messages[topic] = append(m.Messages[topic], body)
	return nil
}

// Count returns how many messages were published to the topic.
func (m *MockPublisher) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages[topic])
}
