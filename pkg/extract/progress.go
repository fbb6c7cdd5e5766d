// pkg/extract/progress.go

package extract

import (
	"fmt"
	"sync"
)

// Activity is the phase an extraction is in.
type Activity uint8

// Activities in the order an extraction passes through them. ExtractingFile
// repeats once per file; Complete is terminal and always reached.
const (
	Initializing Activity = iota
	Uncompressing
	ExtractingFile
	Complete
)

// String returns the activity name.
func (a Activity) String() string {
	switch a {
	case Initializing:
		return "Initializing"
	case Uncompressing:
		return "Uncompressing"
	case ExtractingFile:
		return "ExtractingFile"
	case Complete:
		return "Complete"
	}
	return fmt.Sprintf("Activity(%d)", uint8(a))
}

// ProgressEvent is a copy of the progress state at one point in time.
type ProgressEvent struct {
	Activity Activity
	// FileName is the cabinet entry name of the file just written.
	FileName   string
	FilesDone  int
	FilesTotal int
}

// ProgressFunc receives progress updates on the extracting goroutine.
// Returning an error aborts the extraction; return an error wrapping
// msi.ErrCanceled to signal a deliberate stop.
type ProgressFunc func(ProgressEvent) error

// Progress is the shared state of one extraction. It is written by the
// extracting goroutine and may be read from any other.
type Progress struct {
	mu     sync.Mutex
	state  ProgressEvent
	notify ProgressFunc
	done   chan struct{}
}

// NewProgress returns a Progress at Initializing that reports to notify,
// which may be nil.
func NewProgress(notify ProgressFunc) *Progress {
	return &Progress{notify: notify, done: make(chan struct{})}
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Activity returns the current activity.
func (p *Progress) Activity() Activity {
	return p.Snapshot().Activity
}

// FilesDone returns the number of files written so far.
func (p *Progress) FilesDone() int {
	return p.Snapshot().FilesDone
}

// IsCompleted reports whether the extraction has finished.
func (p *Progress) IsCompleted() bool {
	return p.Activity() == Complete
}

// Done is closed once the extraction reaches Complete.
func (p *Progress) Done() <-chan struct{} {
	return p.done
}

func (p *Progress) setTotal(n int) {
	p.mu.Lock()
	p.state.FilesTotal = n
	p.mu.Unlock()
}

// set records the activity without notifying.
func (p *Progress) set(a Activity, fileName string) {
	p.mu.Lock()
	p.state.Activity = a
	p.state.FileName = fileName
	p.mu.Unlock()
}

// report records the activity and notifies the callback. The lock is not
// held during the callback, so it may read the state.
func (p *Progress) report(a Activity, fileName string) error {
	p.set(a, fileName)
	return p.publish()
}

// fileDone counts one more written file and reports it.
func (p *Progress) fileDone(fileName string) error {
	p.mu.Lock()
	p.state.FilesDone++
	p.state.Activity = ExtractingFile
	p.state.FileName = fileName
	p.mu.Unlock()
	return p.publish()
}

// complete moves to the terminal state and reports it. Only the first call
// has any effect.
func (p *Progress) complete() error {
	p.mu.Lock()
	if p.state.Activity == Complete {
		p.mu.Unlock()
		return nil
	}
	p.state.Activity = Complete
	p.state.FileName = ""
	p.mu.Unlock()
	close(p.done)
	return p.publish()
}

func (p *Progress) publish() error {
	if p.notify == nil {
		return nil
	}
	return p.notify(p.Snapshot())
}
