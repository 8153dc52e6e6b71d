package cognition

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"driftmoor.ai/internal/sim/simerr"
)

type job struct {
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
}

// Queue is the rate-limited broker between the tick loop and the reasoner.
//
// At most one request per key is outstanding and at most `workers` reasoner calls run at once.
// Submit, Cancel, Pending and Drain must only be called from the tick goroutine; workers only
// touch the job they picked and the results channel.
type Queue struct {
	reasoner Reasoner
	log      *logrus.Entry

	jobs    chan *job
	results chan Result

	inflight map[string]*job

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewQueue(r Reasoner, workers, size int, log *logrus.Entry) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = workers
	}
	q := &Queue{
		reasoner: r,
		log:      log,
		jobs:     make(chan *job, size),
		results:  make(chan Result, size+workers),
		inflight: map[string]*job{},
		stop:     make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.worker()
		}()
	}
	return q
}

// Submit dispatches req. It fails with Busy when the key already has an outstanding request
// and with CapacityExceeded when the pool backlog is full.
func (q *Queue) Submit(req Request) error {
	if _, ok := q.inflight[req.Key]; ok {
		return simerr.New(simerr.Busy, "request outstanding for %s", req.Key)
	}
	ctx, cancel := context.WithDeadline(context.Background(), req.Deadline)
	j := &job{req: req, ctx: ctx, cancel: cancel}
	select {
	case q.jobs <- j:
		q.inflight[req.Key] = j
		return nil
	default:
		cancel()
		return simerr.New(simerr.CapacityExceeded, "decision queue full")
	}
}

// Pending returns the outstanding request for key.
func (q *Queue) Pending(key string) (Request, bool) {
	j, ok := q.inflight[key]
	if !ok {
		return Request{}, false
	}
	return j.req, true
}

// Cancel aborts the outstanding request for key. A late response is dropped by the worker.
func (q *Queue) Cancel(key string) bool {
	j, ok := q.inflight[key]
	if !ok {
		return false
	}
	j.cancel()
	delete(q.inflight, key)
	return true
}

// Drain returns every result that completed since the previous call, without blocking.
// Results whose request was cancelled or superseded are dropped here.
func (q *Queue) Drain() []Result {
	var out []Result
	for {
		select {
		case r := <-q.results:
			j, ok := q.inflight[r.Request.Key]
			if !ok || j.req.ID != r.Request.ID {
				q.log.WithFields(logrus.Fields{"key": r.Request.Key, "request_id": r.Request.ID}).Debug("dropping result of cancelled request")
				continue
			}
			delete(q.inflight, r.Request.Key)
			j.cancel()
			out = append(out, r)
		default:
			return out
		}
	}
}

// Ready is the number of results waiting to be drained.
func (q *Queue) Ready() int { return len(q.results) }

// Inflight is the number of outstanding requests.
func (q *Queue) Inflight() int { return len(q.inflight) }

func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.stop)
		for _, j := range q.inflight {
			j.cancel()
		}
	})
	q.wg.Wait()
}

func (q *Queue) worker() {
	for {
		select {
		case <-q.stop:
			return
		case j := <-q.jobs:
			q.run(j)
		}
	}
}

func (q *Queue) run(j *job) {
	var (
		resp Response
		err  error
	)
	if err = j.ctx.Err(); err == nil {
		resp, err = q.reasoner.Reason(j.ctx, j.req)
	}
	if errors.Is(j.ctx.Err(), context.Canceled) {
		// Cancelled at the source (agent removed or world closing).
		return
	}
	if errors.Is(j.ctx.Err(), context.DeadlineExceeded) {
		err = simerr.New(simerr.Timeout, "reasoner exceeded deadline for %s", j.req.Key)
		resp = Response{}
	}
	select {
	case q.results <- Result{Request: j.req, Response: resp, Err: err}:
	case <-q.stop:
	}
}
