package strategy

type orderedStrategy struct{}

func (orderedStrategy) Order(n int, _ int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func (orderedStrategy) Name() string {
	return NameOrdered
}

// NewOrderedStrategy probes from index 0 on every discovery.
func NewOrderedStrategy() Strategy {
	return orderedStrategy{}
}
