package strategy

type stickyStrategy struct{}

func (stickyStrategy) Order(n int, cached int) []int {
	if cached < 0 || cached >= n {
		return orderedStrategy{}.Order(n, NoCache)
	}

	order := make([]int, 0, n)
	order = append(order, cached)
	for i := 0; i < n; i++ {
		if i != cached {
			order = append(order, i)
		}
	}
	return order
}

func (stickyStrategy) Name() string {
	return NameSticky
}

// NewStickyStrategy probes the cached replica first and falls back to the
// full ordered walk.
func NewStickyStrategy() Strategy {
	return stickyStrategy{}
}
