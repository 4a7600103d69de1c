package events

import (
	"hash/fnv"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

// PartitionKey returns the routing key for an order. All events of one order
// share it, so every transport that hashes keys to ordered partitions
// delivers them in emission order to a single consumer.
func PartitionKey(orderID models.ID) string {
	return orderID.String()
}

// Partition maps an order to one of n partitions with a stable FNV-1a hash.
// Used by the in-memory bus and anywhere partition placement must be
// reproduced outside the broker.
func Partition(orderID models.ID, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(n))
}
