// Package metrics defines the hooks a Session reports its transitions through.
package metrics

type Operation string

const (
	OperationRestore      Operation = "restore"
	OperationAuthenticate Operation = "authenticate"
	OperationInvalidate   Operation = "invalidate"
	OperationUpdate       Operation = "update"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeSkipped   Outcome = "skipped"
)

type Recorder interface {
	ObserveOperation(op Operation, outcome Outcome)
	SetAuthenticated(authenticated bool)
}

type Noop struct{}

func (Noop) ObserveOperation(Operation, Outcome) {}

func (Noop) SetAuthenticated(bool) {}
