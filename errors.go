package reagent

import "github.com/m-mizutani/goerr/v2"

var (
	// Tool errors. ErrToolNotFound and ErrToolArgument are recoverable:
	// they are converted into an error-carrying tool message and fed back
	// to the model. ErrToolExecution wraps handler failures and panics.
	// A tool that wants to abort the whole run wraps ErrToolFatal.
	ErrToolNotFound  = goerr.New("tool not found")
	ErrToolArgument  = goerr.New("invalid tool arguments")
	ErrToolExecution = goerr.New("tool execution failed")
	ErrToolFatal     = goerr.New("fatal tool error")
	ErrDuplicateTool = goerr.New("tool name already registered")

	// Tool and parameter specification errors (registration time).
	ErrInvalidTool      = goerr.New("invalid tool specification")
	ErrInvalidParameter = goerr.New("invalid parameter")

	// Model port errors. Adapters wrap their transport failures into one
	// of these. ErrModelUnavailable and ErrModelRateLimited are retried
	// with bounded backoff, ErrModelProtocol is terminal.
	ErrModelUnavailable = goerr.New("model unavailable")
	ErrModelRateLimited = goerr.New("model rate limited")
	ErrModelProtocol    = goerr.New("malformed model response")

	// Loop errors.
	ErrStepLimitExceeded = goerr.New("step limit exceeded")
	ErrRunCancelled      = goerr.New("run cancelled")
	ErrStructuredOutput  = goerr.New("structured output validation failed")

	// Checkpoint store errors.
	ErrThreadBusy         = goerr.New("thread is busy")
	ErrCheckpointConflict = goerr.New("checkpoint step conflict")
)
