package httpresp

const (
	ErrUnauthorized       = "unauthorized"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrInvalidFileID      = "invalid file id"
	ErrInvalidPagination  = "skip and limit must be integers"
	ErrTooManyRequests    = "too many requests"
	ErrInternal           = "internal server error"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewStatusResponse(status string) StatusResponse {
	return StatusResponse{Status: status}
}

func NewNotReadyResponse(err error) StatusResponse {
	return StatusResponse{Status: "not_ready", Error: err.Error()}
}
