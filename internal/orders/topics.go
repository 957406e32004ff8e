package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicPaymentChanged     = "order.payment.changed"
	TopicOrderRefunded      = "order.refunded"
	TopicLowStock           = "inventory.low_stock"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
