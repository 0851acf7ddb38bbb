// Package eval implements the batched evaluator: a single goroutine that
// owns a network Executor and serves many search clients over one-slot
// channel pairs, gathering submissions into a batch and running one
// network call per tick.
//
// pull does a non-blocking round-robin sweep across client pipes, then
// falls back to a blocking multi-way receive only when the sweep found no
// job at all; it does not wait for a batch to fill to capacity, so a batch
// holds whatever was ready when it was pulled;
// tick builds one zero-filled input, has every waiting position stamp its
// feature bits into its row, runs one evaluation, and fans results back
// out in pull order.
package eval

import (
	"io"
	"log"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Executor is the network collaborator: it runs one forward pass over a
// batch of feature vectors already packed into input, and returns raw
// policy logits and win-probability values.
type Executor interface {
	Execute(input *tensor.Dense) (policy, value *tensor.Dense, err error)
}

// job is one client's submitted position, already reduced to the sparse
// feature-bit indices fill_feature_map would mark.
type job struct {
	features  []int
	policyDim int
}

// result is the evaluator's reply to one job.
type result struct {
	policy []float32
	value  float32
	err    error
}

type pipe struct {
	jobs    chan job
	results chan result
}

// Client is one search thread's handle into the evaluator. It satisfies
// search.Evaluator without either package importing the other.
type Client struct {
	p *pipe
}

// Evaluate submits one position and blocks for its reply. It is safe to
// call from exactly one goroutine per Client.
func (c *Client) Evaluate(features []int, policyDim int) ([]float32, float32, error) {
	c.p.jobs <- job{features: features, policyDim: policyDim}
	r, ok := <-c.p.results
	if !ok {
		return nil, 0, errors.New("eval: evaluator shut down")
	}
	return r.policy, r.value, r.err
}

// Close disconnects this client. The evaluator observes the closed jobs
// channel the next time it sweeps or selects on it and stops routing
// batches to this slot; this is the normal termination signal, not an
// error.
func (c *Client) Close() { close(c.p.jobs) }

// Evaluator is the batching loop. TensorDims and PolicyDim mirror the
// concrete rules.Game the clients were built for; Evaluator itself stays
// generic over Position/Move by only ever seeing feature-index slices, the
// same trick that keeps the search package decoupled from eval.
type Evaluator struct {
	executor   Executor
	tensorDims func(batch int) []int
	policyDim  int
	batchSize  int
	pipes      []*pipe
	logger     *log.Logger

	cursor      int
	live        []bool
	ticks       uint64
	batchFills  []float64
	tickLatency []float64
}

// NewEvaluator builds an Evaluator with numClients client slots, a batch
// capacity of min(numClients, 1024), and returns one Client per slot in
// order.
func NewEvaluator(executor Executor, tensorDims func(batch int) []int, policyDim, numClients int, logger *log.Logger) (*Evaluator, []*Client) {
	batchSize := numClients
	if batchSize > 1024 {
		batchSize = 1024
	}
	e := &Evaluator{
		executor:   executor,
		tensorDims: tensorDims,
		policyDim:  policyDim,
		batchSize:  batchSize,
		logger:     logger,
	}
	clients := make([]*Client, numClients)
	for i := 0; i < numClients; i++ {
		p := &pipe{jobs: make(chan job, 1), results: make(chan result, 1)}
		e.pipes = append(e.pipes, p)
		e.live = append(e.live, true)
		clients[i] = &Client{p: p}
	}
	return e, clients
}

// Run drives pull/tick until every client has disconnected, then returns.
// It is meant to be the body of the evaluator's own goroutine.
func (e *Evaluator) Run() {
	for {
		batch := e.pull()
		if batch == nil {
			return
		}
		e.tick(batch)
	}
}

type waiting struct {
	idx int
	job job
}

// pull gathers up to batchSize jobs: first a non-blocking round-robin sweep
// over every still-live pipe, then, if that came up empty and at least one
// pipe is still live, a blocking multi-way receive for the first job
// followed by one more non-blocking sweep to top the batch up. A nil
// return means every client has disconnected.
func (e *Evaluator) pull() []waiting {
	var batch []waiting
	e.sweep(&batch)
	if len(batch) > 0 {
		e.cursor = (e.cursor + 1) % max1(len(e.pipes))
		return batch
	}
	if !e.anyLive() {
		return nil
	}
	if !e.blockForOne(&batch) {
		return nil
	}
	e.sweep(&batch)
	return batch
}

func max1(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

func (e *Evaluator) anyLive() bool {
	for _, l := range e.live {
		if l {
			return true
		}
	}
	return false
}

func (e *Evaluator) sweep(batch *[]waiting) {
	n := len(e.pipes)
	for i := 0; i < n && len(*batch) < e.batchSize; i++ {
		idx := (e.cursor + i) % n
		if !e.live[idx] {
			continue
		}
		select {
		case j, ok := <-e.pipes[idx].jobs:
			if !ok {
				e.live[idx] = false
				continue
			}
			*batch = append(*batch, waiting{idx: idx, job: j})
		default:
		}
	}
}

// blockForOne blocks until exactly one live pipe yields a job (appending
// it to batch) or every live pipe is discovered disconnected, in which
// case it returns false.
func (e *Evaluator) blockForOne(batch *[]waiting) bool {
	for e.anyLive() {
		liveIdx := make([]int, 0, len(e.pipes))
		cases := make([]reflect.SelectCase, 0, len(e.pipes))
		for i, p := range e.pipes {
			if !e.live[i] {
				continue
			}
			liveIdx = append(liveIdx, i)
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(p.jobs)})
		}
		if len(cases) == 0 {
			return false
		}
		chosen, recv, ok := reflect.Select(cases)
		idx := liveIdx[chosen]
		if !ok {
			e.live[idx] = false
			continue
		}
		*batch = append(*batch, waiting{idx: idx, job: recv.Interface().(job)})
		return true
	}
	return false
}

// tick runs one network evaluation over the gathered batch and fans the
// results back out in pull order.
func (e *Evaluator) tick(batch []waiting) {
	start := time.Now()
	dims := e.tensorDims(len(batch))
	width := 1
	for _, d := range dims[1:] {
		width *= d
	}
	backing := make([]float32, len(batch)*width)
	for i, w := range batch {
		for _, k := range w.job.features {
			backing[i*width+k] = 1.0
		}
	}
	input := tensor.New(tensor.WithBacking(backing), tensor.WithShape(dims...))

	policy, value, err := e.executor.Execute(input)
	if err != nil {
		for _, w := range batch {
			e.pipes[w.idx].results <- result{err: errors.Wrap(err, "eval: network evaluation failed")}
		}
		return
	}

	policyData := policy.Data().([]float32)
	valueData := value.Data().([]float32)
	for i, w := range batch {
		row := make([]float32, e.policyDim)
		copy(row, policyData[i*e.policyDim:(i+1)*e.policyDim])
		e.pipes[w.idx].results <- result{policy: row, value: valueData[i]}
	}

	e.record(len(batch), time.Since(start))
}

// record keeps a short rolling diagnostics window and logs a summary every
// 128 ticks, the same cadence the data generator reports at.
func (e *Evaluator) record(batchLen int, elapsed time.Duration) {
	if e.logger == nil {
		return
	}
	e.ticks++
	e.batchFills = append(e.batchFills, float64(batchLen))
	e.tickLatency = append(e.tickLatency, float64(elapsed.Microseconds()))
	if len(e.batchFills) > 4096 {
		e.batchFills = e.batchFills[len(e.batchFills)-4096:]
		e.tickLatency = e.tickLatency[len(e.tickLatency)-4096:]
	}
	if e.ticks%128 != 0 {
		return
	}
	meanFill, stdFill := stat.MeanStdDev(e.batchFills, nil)
	meanLat, stdLat := stat.MeanStdDev(e.tickLatency, nil)
	e.logger.Printf("eval: ticks=%d batch=%.1f±%.1f latency_us=%.0f±%.0f", e.ticks, meanFill, stdFill, meanLat, stdLat)
}

// Close shuts the evaluator's executor down, if it implements io.Closer.
// It does not stop Run or wait for clients: client disconnection is driven
// independently by each Client.Close, and Close only tears down the shared
// network resource.
func (e *Evaluator) Close() error {
	var merr *multierror.Error
	if closer, ok := e.executor.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "eval: closing executor"))
		}
	}
	return merr.ErrorOrNil()
}
