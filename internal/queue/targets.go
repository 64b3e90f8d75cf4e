package queue

import (
	"strings"

	"github.com/example/order-event-pipeline/internal/event"
)

// Targets maps each consumer topic to its webhook target URL.
type Targets map[event.Topic]string

// For resolves the target for env via the router. Unmapped event types land
// on the analytics target, mirroring the router's catch-all.
func (t Targets) For(env event.Envelope) string {
	return t[event.RouteFor(env)]
}

// TargetsFromBase derives one target per topic under base, e.g.
// https://consumer.internal/webhooks -> .../webhooks/commands.
func TargetsFromBase(base string) Targets {
	base = strings.TrimRight(base, "/")
	t := Targets{}
	for _, topic := range event.Topics() {
		t[topic] = base + "/" + topic.String()
	}
	return t
}
