package cachescope

// UsageError covers the spec's §7 UsageError cases this package is
// responsible for: no active cache scope at task construction.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return "cachescope: " + e.Msg }
