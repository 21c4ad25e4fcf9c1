package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/taspa/console/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// Forbidden indicates the signed-in roles do not permit the action
	Forbidden = 3

	// ConfigError indicates unreadable or invalid configuration
	ConfigError = 4

	// AuthError indicates an authentication failure: no session, or one that
	// could not be refreshed
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the command was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code. Coded errors are mapped by
// code; anything else falls back to cobra's usage error wording.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch code := errors.CodeOf(err); {
	case code == errors.ErrCodeForbidden:
		return Forbidden
	case code == errors.ErrCodeUnauthorized, code == errors.ErrCodeLoginFailed, code == errors.ErrCodeSessionState:
		return AuthError
	case code == errors.ErrCodeHTTPTransport:
		return NetworkError
	case code == errors.ErrCodeConfigInvalid, code == errors.ErrCodeConfigNotFound:
		return ConfigError
	case code == errors.ErrCodeInputRequired, code == errors.ErrCodeInputInvalid:
		return UsageError
	case code != "":
		return GeneralError
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NetworkError
	}

	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{"unknown flag", "invalid argument", "unknown command", "required flag", "accepts ", "requires "} {
		if strings.Contains(errMsg, marker) {
			return UsageError
		}
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case Forbidden:
		return "Not permitted for the current roles"
	case ConfigError:
		return "Configuration error"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
