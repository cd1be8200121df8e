package terminal

import "fmt"

// ConnectivityError means the terminal bridge could not be reached or did
// not answer a request.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("terminal unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// AuthorizationError means the terminal rejected the login or the account is
// not authorized for the requested operation.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("terminal authorization failed: %s", e.Reason)
}

// SymbolUnavailableError means the requested symbol could not be resolved
// against the terminal's tradable symbol list.
type SymbolUnavailableError struct {
	Symbol string
}

func (e *SymbolUnavailableError) Error() string {
	return fmt.Sprintf("symbol %s not available on this account", e.Symbol)
}
