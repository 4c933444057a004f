package response

// Response is the envelope of every API reply.
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	// Kind classifies errors for clients: validation, invariant, capacity,
	// not_found, conflict or internal.
	Kind string `json:"kind,omitempty"`
}

func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Failure is Error with the error kind attached.
func Failure(statusCode int, kind, err string) Response {
	r := Error(statusCode, err)
	r.Kind = kind
	return r
}
