// Package feed defines the transport contract between the engine and the
// outside world. The engine consumes vehicle position and load lifecycle
// feeds and publishes match, plan and run events; the broker-backed
// implementation lives in infra/mqtt.
package feed

import "errors"

// ErrNotConnected means the transport has no live broker connection.
var ErrNotConnected = errors.New("feed transport not connected")

// Publisher sends a JSON-encoded payload to a topic.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Topics used on the outbound side. Inbound topics are configured.
const (
	TopicMatches = "matching/matches"
	TopicPlans   = "matching/plans"
	TopicRuns    = "matching/runs"
	TopicHubs    = "matching/hubs"
)
