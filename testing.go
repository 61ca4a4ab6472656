package nucore

import (
	"sync"

	"github.com/nushift/nucore/internal/deferred"
)

// StubObserver is a call-counting Observer double for unit tests,
// mirroring the teacher's MockBackend call-counting idiom.
type StubObserver struct {
	mu sync.Mutex

	HandshakeStepCalls        int
	SyscallCalls              int
	DeferredTaskFinishedCalls int
	PendingTasksCalls         int

	LastHandshakeStepSuccess bool
	LastSyscallSuccess       bool
	LastDeferredTaskSuccess  bool
	LastPendingTasksDepth    uint32
}

// NewStubObserver creates a StubObserver with all counters zeroed.
func NewStubObserver() *StubObserver { return &StubObserver{} }

func (o *StubObserver) ObserveHandshakeStep(latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.HandshakeStepCalls++
	o.LastHandshakeStepSuccess = success
}

func (o *StubObserver) ObserveSyscall(latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.SyscallCalls++
	o.LastSyscallSuccess = success
}

func (o *StubObserver) ObserveDeferredTaskFinished(latencyNs uint64, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.DeferredTaskFinishedCalls++
	o.LastDeferredTaskSuccess = success
}

func (o *StubObserver) ObservePendingTasks(depth uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PendingTasksCalls++
	o.LastPendingTasksDepth = depth
}

// CallCounts returns the number of times each Observe method has been
// called, in the same shape as the teacher's MockBackend.CallCounts.
func (o *StubObserver) CallCounts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[string]int{
		"handshake_step":         o.HandshakeStepCalls,
		"syscall":                o.SyscallCalls,
		"deferred_task_finished": o.DeferredTaskFinishedCalls,
		"pending_tasks":          o.PendingTasksCalls,
	}
}

var _ Observer = (*StubObserver)(nil)

// StubTabContext is a call-counting deferred.TabContext double, recording
// every title/accessibility-tree/present-frame/outputs call it receives.
type StubTabContext struct {
	mu sync.Mutex

	Titles             []string
	AccessibilityTrees []deferred.AccessibilityTree
	PresentedFormats   []deferred.PresentBufferFormat
	PresentedBuffers   [][]byte
	OutputsToReturn    []deferred.Output

	SetTitleCalls                 int
	PublishAccessibilityTreeCalls int
	PresentFrameCalls             int
	OutputsCalls                  int
}

// NewStubTabContext creates a StubTabContext that returns outputs from
// outputsToReturn when its Outputs method is called.
func NewStubTabContext(outputsToReturn ...deferred.Output) *StubTabContext {
	return &StubTabContext{OutputsToReturn: outputsToReturn}
}

func (s *StubTabContext) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetTitleCalls++
	s.Titles = append(s.Titles, title)
	return nil
}

func (s *StubTabContext) PublishAccessibilityTree(tree deferred.AccessibilityTree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PublishAccessibilityTreeCalls++
	s.AccessibilityTrees = append(s.AccessibilityTrees, tree)
	return nil
}

func (s *StubTabContext) PresentFrame(format deferred.PresentBufferFormat, buffer []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PresentFrameCalls++
	s.PresentedFormats = append(s.PresentedFormats, format)
	s.PresentedBuffers = append(s.PresentedBuffers, buffer)
	return nil
}

func (s *StubTabContext) Outputs() []deferred.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OutputsCalls++
	return s.OutputsToReturn
}

var _ deferred.TabContext = (*StubTabContext)(nil)
