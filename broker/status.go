package broker

// Status is the lifecycle state of an order.
//
//	NEW -> FILLED | CANCELED | FAILED
//
// Terminal states have no outgoing transitions.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusFailed   Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusFilled, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusFailed
}

// CanTransition reports whether an order in s may move to next.
func (s Status) CanTransition(next Status) bool {
	return s == StatusNew && next.Terminal()
}
