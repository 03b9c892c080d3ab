package usecase

// Context keys for error values
const (
	RequestIDKey = "request_id"
	StageKey     = "stage"
)
