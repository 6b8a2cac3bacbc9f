package scales

import (
	"os"
	"sync"
	"syscall"
	"time"
)

// ProcessTracker records the child OS processes a command handler
// spawns so a timed out invocation can reap them. Handlers register
// the process right after starting it and unregister on normal exit.
type ProcessTracker struct {
	mu sync.Mutex

	procs map[int]*os.Process
}

func NewProcessTracker() *ProcessTracker {
	return &ProcessTracker{
		procs: make(map[int]*os.Process),
	}
}

func (self *ProcessTracker) Register(proc *os.Process) {
	if proc == nil {
		return
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	self.procs[proc.Pid] = proc
}

func (self *ProcessTracker) Unregister(pid int) {
	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.procs, pid)
}

func (self *ProcessTracker) Count() int {
	self.mu.Lock()
	defer self.mu.Unlock()

	return len(self.procs)
}

// KillAll terminates every tracked process: SIGTERM first, then
// SIGKILL for anything still registered after the grace period.
func (self *ProcessTracker) KillAll(grace time.Duration) {
	self.mu.Lock()
	for _, proc := range self.procs {
		proc.Signal(syscall.SIGTERM)
	}
	self.mu.Unlock()

	if grace > 0 {
		deadline := time.Now().Add(grace)
		for time.Now().Before(deadline) {
			if self.Count() == 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	for pid, proc := range self.procs {
		proc.Kill()
		delete(self.procs, pid)
	}
}
