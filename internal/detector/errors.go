package detector

import "fmt"

// UnknownKeywordError reports a checkout request for a keyword that was
// not discovered at startup
type UnknownKeywordError struct {
	Name string
}

func (e *UnknownKeywordError) Error() string {
	return fmt.Sprintf("unknown keyword %q", e.Name)
}

// EngineInitError reports a failed engine construction (bad credentials,
// missing or corrupt model, unsupported platform)
type EngineInitError struct {
	Name        string
	Sensitivity float32
	Err         error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("failed to initialize engine for keyword %q (sensitivity %.2f): %v",
		e.Name, e.Sensitivity, e.Err)
}

func (e *EngineInitError) Unwrap() error {
	return e.Err
}
