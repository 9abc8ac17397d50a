package bus

// Topic names follow <source>.<domain>.<kind>. The substreams topics carry
// raw chain events published by the Substreams sink; the live topic carries
// re-broadcast envelopes for connected dashboards.
const (
	TopicMarketplaceEvents = "substreams.marketplace.events"
	TopicBridgeEvents      = "substreams.bridge.events"
	TopicLiveEvents        = "openapi.events.live"
)

// AllTopics lists every topic the platform provisions.
func AllTopics() []string {
	return []string{TopicMarketplaceEvents, TopicBridgeEvents, TopicLiveEvents}
}

// TopicRetention maps topics to their retention in hours. Raw chain events
// are kept a week for reindexing; the live feed is ephemeral.
var TopicRetention = map[string]int{
	TopicMarketplaceEvents: 168,
	TopicBridgeEvents:      168,
	TopicLiveEvents:        24,
}
