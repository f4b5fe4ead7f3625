package domain

import "errors"

// Pipeline error taxonomy. Wrap with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// ErrHardBlock indicates the risk gate vetoed the candidate. Never retried.
	ErrHardBlock = errors.New("risk gate hard block")

	// ErrNoRoute indicates no liquidity path exists right now. Callers may retry later.
	ErrNoRoute = errors.New("no route")

	// ErrUserRejected indicates signing was declined. Terminal.
	ErrUserRejected = errors.New("user rejected signing")

	// ErrTransientNetwork indicates a timeout, 5xx or rate limit that outlived retries.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrDataUnavailable indicates an upstream data service did not answer.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrCorruption indicates an on-chain result inconsistent with expectations.
	ErrCorruption = errors.New("implausible on-chain result")

	// ErrMalformedResponse indicates an external response failed typed parsing.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrDecimalsUnavailable indicates the token scale could not be resolved.
	ErrDecimalsUnavailable = errors.New("token decimals unavailable")

	// ErrPrerequisite indicates a missing signer or an underfunded wallet.
	ErrPrerequisite = errors.New("prerequisite not met")

	// ErrConfirmationTimeout indicates the confirmation budget was exhausted.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrExitInProgress indicates another exit for the same position is running.
	ErrExitInProgress = errors.New("exit already in progress")

	// ErrAlreadyProcessed indicates the candidate was already attempted or queued.
	ErrAlreadyProcessed = errors.New("candidate already processed")
)
