package domain

// Record is one row of the external record store.
type Record struct {
	ID         string
	Type       string
	Attributes map[string]any
}
