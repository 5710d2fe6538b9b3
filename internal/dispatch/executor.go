package dispatch

import "os/exec"

// Executor creates exec.Cmd instances. The seam exists for tests: dispatch
// logic can be exercised against harmless binaries without a vagrant
// install on the machine running the suite.
type Executor interface {
	Command(name string, args ...string) *exec.Cmd
}

// execExecutor is the production Executor backed by os/exec.
type execExecutor struct{}

func (execExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}
