package worker

import "context"

// RunResult is what the execution engine reports back for one playbook run.
type RunResult struct {
	Succeeded bool
	Output    string
}

// Runner is the execution engine boundary. The engine itself (ansible-runner
// or equivalent) lives outside this process; the worker only consumes this
// capability.
type Runner interface {
	Run(ctx context.Context, playbook, inventory string) (RunResult, error)
}
