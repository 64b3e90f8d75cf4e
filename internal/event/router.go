package event

import "strings"

// Topic identifies a logical webhook consumer.
type Topic int

const (
	TopicCommands Topic = iota
	TopicOrders
	TopicNotifications
	TopicInventory
	TopicAnalytics
)

func (t Topic) String() string {
	switch t {
	case TopicCommands:
		return "commands"
	case TopicOrders:
		return "orders"
	case TopicNotifications:
		return "notifications"
	case TopicInventory:
		return "inventory"
	case TopicAnalytics:
		return "analytics"
	}
	return "unknown"
}

// Topics lists every routable topic, in route order.
func Topics() []Topic {
	return []Topic{TopicCommands, TopicOrders, TopicNotifications, TopicInventory, TopicAnalytics}
}

// RouteFor maps an envelope to its consumer topic by type prefix. Unmapped
// types fall through to analytics rather than erroring, so new event types
// can be introduced without stranding messages.
func RouteFor(e Envelope) Topic {
	switch {
	case strings.HasPrefix(e.Type, "command."):
		return TopicCommands
	case strings.HasPrefix(e.Type, "order."):
		return TopicOrders
	case strings.HasPrefix(e.Type, "notification."):
		return TopicNotifications
	case strings.HasPrefix(e.Type, "inventory."):
		return TopicInventory
	default:
		return TopicAnalytics
	}
}
