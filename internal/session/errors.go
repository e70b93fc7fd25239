package session

import "errors"

// Kind discriminates orchestration failure modes so transport layers can map
// them to status codes without matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindBackendNotInitialized
	KindModelNotLoaded
	KindModelLoadFailed
	KindContextCreateFailed
	KindEmptyPrompt
	KindPromptTooLong
	KindDecodeFailure
	KindAdapterCreateFailed
	KindAdapterLoadFailed
	KindAdapterApplyFailed
	KindAdapterSaveFailed
	KindTrainingTextTooShort
	KindTrainingNotInitialized
	KindBusy
)

// Error is the discriminated error value surfaced at every session boundary.
// None of these crash the process; they are returned (or delivered via the
// error sink in streaming mode) after resource cleanup has run.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

func wrapError(k Kind, msg string, err error) *Error { return &Error{Kind: k, Msg: msg, Err: err} }

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, k Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == k
	}
	return false
}

// Predicates used by the HTTP error mapping.

func IsModelNotLoaded(err error) bool { return IsKind(err, KindModelNotLoaded) }

func IsBadInput(err error) bool {
	return IsKind(err, KindEmptyPrompt) || IsKind(err, KindPromptTooLong) ||
		IsKind(err, KindTrainingTextTooShort)
}

func IsNotReady(err error) bool {
	return IsKind(err, KindBackendNotInitialized) || IsKind(err, KindTrainingNotInitialized)
}

func IsBusy(err error) bool { return IsKind(err, KindBusy) }
