package chflow

// Envelope is the DONE payload of a fetch: the originating fence key plus
// either the fetched data or the error. Consumers compare Key against the
// category's current fence to decide whether the result is stale.
type Envelope struct {
	Category Category
	Key      FenceKey
	Data     any
	Err      error
}

// Wrap packages a fetch outcome with its fence key. When err is non-nil the
// data is dropped so that exactly one side of the envelope is populated.
func Wrap(category Category, key FenceKey, data any, err error) Envelope {
	if err != nil {
		return Envelope{Category: category, Key: key, Err: err}
	}
	return Envelope{Category: category, Key: key, Data: data}
}

// OK reports whether the envelope carries data rather than an error.
func (e Envelope) OK() bool {
	return e.Err == nil
}

// Matches reports whether the envelope belongs to the given fence.
func (e Envelope) Matches(current FenceKey) bool {
	return e.Key == current
}

// DataAs returns the envelope data as T.
func DataAs[T any](e Envelope) (T, bool) {
	v, ok := e.Data.(T)
	return v, ok
}
