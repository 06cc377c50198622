package backend

import "fmt"

// StatusError is a non-2xx reply.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Endpoint, e.Code, e.Body)
}

// RemoteError is a failure the backend reported in a well-formed reply.
// Its message is meant to be shown to the operator verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "backend reported an error"
	}
	return e.Message
}
