package response

type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request. ExistingID is set on
// competency conflicts and Preview on documents that could not be parsed.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Field      string `json:"field,omitempty"`
	ExistingID int64  `json:"existing_id,omitempty"`
	Preview    string `json:"preview,omitempty"`
}
