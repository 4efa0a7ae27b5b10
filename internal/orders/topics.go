package orders

const (
	TopicOfferCreated = "order.offer.created"
	TopicOfferUpdated = "order.offer.updated"
)

// TopicFor maps an event type to its topic.
func TopicFor(eventType string) string {
	if eventType == EventOfferCreated {
		return TopicOfferCreated
	}
	return TopicOfferUpdated
}

// Partition key = order_id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
