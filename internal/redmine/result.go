package redmine

// Result carries a listing together with the error that emptied it, so
// callers can tell a confirmed empty answer from a failed request.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) Ok() bool {
	return r.Err == nil
}
