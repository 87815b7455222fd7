package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced    Counter
	OrdersFailed    Counter
	PositionsOpened Counter
	PositionsClosed Counter
	CycleErrors     Counter
	PersistErrors   Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:    n,
		OrdersFailed:    n,
		PositionsOpened: n,
		PositionsClosed: n,
		CycleErrors:     n,
		PersistErrors:   n,
	}
}
