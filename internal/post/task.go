package post

import "sync"

// Task tracks one asynchronous post-processing job. The state machine that
// launches it never blocks on it; tests and the CLI can Wait.
type Task struct {
	done chan struct{}

	mu   sync.Mutex
	path string
	err  error
}

// NewTask creates an unfinished task. Fake pipelines in tests complete it
// with Finish.
func NewTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Finish completes the task exactly once.
func (t *Task) Finish(path string, err error) {
	t.mu.Lock()
	t.path = path
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// Done is closed when the job completes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until completion and returns the output path and error.
func (t *Task) Wait() (string, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path, t.err
}

// TaskSet tracks in-flight post-processing jobs.
type TaskSet struct {
	mu    sync.Mutex
	tasks map[*Task]struct{}
}

func NewTaskSet() *TaskSet {
	return &TaskSet{tasks: make(map[*Task]struct{})}
}

// Track adds a task and removes it when it completes.
func (s *TaskSet) Track(t *Task) {
	s.mu.Lock()
	s.tasks[t] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-t.Done()
		s.mu.Lock()
		delete(s.tasks, t)
		s.mu.Unlock()
	}()
}

func (s *TaskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
