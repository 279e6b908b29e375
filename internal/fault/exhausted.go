package fault

import "fmt"

// ExhaustedError is returned once every replica has been tried. It is the
// caller-visible signal that the embedding application may want to show a
// fallback page.
type ExhaustedError struct {
	Attempts   int
	LastStatus int
	Last       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.cause())
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.cause()}
}

func (e *ExhaustedError) cause() error {
	if e.Last != nil {
		return e.Last
	}
	if e.LastStatus != 0 {
		return fmt.Errorf("%w: last status %d", ErrConnectivity, e.LastStatus)
	}
	return ErrConnectivity
}
