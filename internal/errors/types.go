package errors

// ErrorResponse is the body of every error answered by the API
type ErrorResponse struct {
	// machine readable, e.g. "validation_error"
	Error   string `json:"error"`
	Message string `json:"message"`
	// sanitized in production
	Details string `json:"details,omitempty"`
}

type ErrorInfo struct {
	category  string
	sanitized string
}

func (e ErrorInfo) Category() string {
	return e.category
}
