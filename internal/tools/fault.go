package tools

import "sync"

// FaultToolset decorates a Toolset with scripted failures for tests,
// following the same decorator shape the llm middleware uses. It replaces
// the original's module-level monkey patching so test runs stay isolated.
type FaultToolset struct {
	Next Toolset

	mu        sync.Mutex
	listErr   error
	readFails map[string]*faultSpec
	attempts  map[string]int
}

type faultSpec struct {
	remaining int // -1 means fail forever
	err       error
}

// NewFaultToolset wraps next with no faults configured.
func NewFaultToolset(next Toolset) *FaultToolset {
	return &FaultToolset{
		Next:      next,
		readFails: make(map[string]*faultSpec),
		attempts:  make(map[string]int),
	}
}

// FailList makes every ListFiles call fail with err.
func (f *FaultToolset) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailReads makes the next n ReadFile calls for rel fail with err.
// Pass n < 0 to fail every attempt.
func (f *FaultToolset) FailReads(rel string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readFails[rel] = &faultSpec{remaining: n, err: err}
}

// Attempts reports how many ReadFile calls were made for rel.
func (f *FaultToolset) Attempts(rel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[rel]
}

func (f *FaultToolset) ListFiles(root string) (ListFilesResult, error) {
	f.mu.Lock()
	err := f.listErr
	f.mu.Unlock()
	if err != nil {
		return ListFilesResult{}, err
	}
	return f.Next.ListFiles(root)
}

func (f *FaultToolset) ReadFile(root, rel string, opts ReadOptions) (ReadFileResult, error) {
	f.mu.Lock()
	f.attempts[rel]++
	spec := f.readFails[rel]
	if spec != nil && spec.remaining != 0 {
		if spec.remaining > 0 {
			spec.remaining--
		}
		err := spec.err
		f.mu.Unlock()
		return ReadFileResult{}, err
	}
	f.mu.Unlock()
	return f.Next.ReadFile(root, rel, opts)
}
