package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// JobTask is a unit of background work. OnStart runs on a worker; exactly
// one of OnComplete or OnFailure follows, then OnCompletionCallback.
type JobTask struct {
	Name        string
	InputParams interface{}
	OnStart     func(input interface{}) (interface{}, error)
	/** @brief Receives the value returned by OnStart. Optional. */
	OnComplete func(output interface{})
	/** @brief Receives the error returned by OnStart. Optional. */
	OnFailure func(err error)
	/** @brief Called after either outcome. Optional. */
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system already shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan JobTask, channelSize)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	output, err := job.OnStart(job.InputParams)
	if err != nil {
		core.LogError("job %q failed: %v", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete(output)
	}

	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs are still executed.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// AddWorkNonBlocking queues the job from a new goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("job %q dropped: %v", jt.Name, err)
		}
	}()
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.OnStart == nil {
		return fmt.Errorf("job %q has no entry point", jt.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
