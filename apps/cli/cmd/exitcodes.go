package cmd

// Exit codes for httptask CLI
const (
	// ExitSuccess indicates the request completed with a success status
	ExitSuccess = 0

	// ExitRequestFailure indicates the request completed with a failure status
	ExitRequestFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitCanceled indicates the request was canceled before completing
	ExitCanceled = 5

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
