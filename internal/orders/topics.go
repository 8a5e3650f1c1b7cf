package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCompleted = "order.completed"
	TopicOrderFailed    = "order.failed"
	TopicNotifyPush     = "notify.push"
)

// Partition key = order_id so every event for one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
