package strategy

const (
	NameOrdered = "ordered"
	NameSticky  = "sticky"
)

// NoCache is passed as cached when no replica is currently selected.
const NoCache = -1

type Strategy interface {
	// Order returns the indices of n replicas in the order they should be
	// probed. cached is the currently selected index or NoCache.
	Order(n int, cached int) []int
	Name() string
}

// New returns the strategy registered under name, and false if there is none.
func New(name string) (Strategy, bool) {
	switch name {
	case NameOrdered:
		return NewOrderedStrategy(), true
	case NameSticky:
		return NewStickyStrategy(), true
	default:
		return nil, false
	}
}
