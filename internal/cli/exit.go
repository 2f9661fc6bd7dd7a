package cli

// Process exit codes.
const (
	ExitOK = 0
	// ExitFailure means at least one table failed or was skipped.
	ExitFailure = 1
	// ExitConfig means the configuration, catalog or arguments are invalid.
	ExitConfig = 2
	// ExitInterrupted means the launch was cancelled by a signal.
	ExitInterrupted = 130
)

// ExitError carries the exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func configError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ExitConfig, Err: err}
}
