package orders

// Status is shared by orders and order items.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Transition policy: forward along the fulfillment path (skipping steps is
// allowed, a vendor may mark shipped straight from pending), cancelled and
// refunded reachable from any non-terminal state, terminal states frozen.
// Backward transitions are rejected.
var forwardRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

var terminal = map[Status]bool{
	StatusDelivered: true,
	StatusCancelled: true,
	StatusRefunded:  true,
}

func ValidStatus(s Status) bool {
	if _, ok := forwardRank[s]; ok {
		return true
	}
	return s == StatusCancelled || s == StatusRefunded
}

func IsTerminal(s Status) bool { return terminal[s] }

func CanTransition(from, to Status) bool {
	if !ValidStatus(from) || !ValidStatus(to) || from == to {
		return false
	}
	if terminal[from] {
		return false
	}
	if to == StatusCancelled || to == StatusRefunded {
		return true
	}
	return forwardRank[to] > forwardRank[from]
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)
