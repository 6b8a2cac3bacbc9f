/*
   Basilisk - Binary Analysis Artifact Store
   Copyright (C) 2026 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// The dispatcher owns the lifecycle of command executions: result
// reuse, request replacement, queueing and the worker contract.
package dispatch

import (
	"context"
	"os"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/records"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/subjects"
	"www.velocidex.com/golang/basilisk/utils"
)

var (
	queueOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_queue_total",
			Help: "Outcomes of queue requests.",
		},
		[]string{"outcome"},
	)

	executionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_execution_seconds",
			Help:    "Wall time of command executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		},
	)
)

// The generic message stored when a worker dies without recording a
// proper failure.
const genericFailure = "worker failed please check log"

type Request struct {
	Sha256Digest string
	FileType     subjects.FileType
	Scale        string
	Command      string
	Args         map[string]interface{}
	Asynchronous bool

	// Soft limit in seconds, 0 means the configured default.
	Timeout int
}

type Dispatcher struct {
	config_obj *config.Config
	registry   *scales.Registry
	recs       *records.Store
	subs       *subjects.Service
	files      api.FileStore
	queue      TaskQueue
	submitter  scales.Submitter
}

func NewDispatcher(
	config_obj *config.Config,
	registry *scales.Registry,
	recs *records.Store,
	subs *subjects.Service,
	files api.FileStore,
	queue TaskQueue) *Dispatcher {
	return &Dispatcher{
		config_obj: config_obj,
		registry:   registry,
		recs:       recs,
		subs:       subs,
		files:      files,
		queue:      queue,
	}
}

// SetSubmitter wires the derived artifact submitter handlers receive
// through their invocation options.
func (self *Dispatcher) SetSubmitter(submitter scales.Submitter) {
	self.submitter = submitter
}

// Queue runs the request lifecycle:
//
//  1. An in-flight (pending or running) record under the same
//     composite key is returned as is - never a second execution.
//  2. A terminal record is replaced by a fresh pending one; the old
//     output blob is released after the swap commits.
//  3. Otherwise a fresh pending record is inserted.
//
// Asynchronous requests return as soon as the unit is queued.
// Synchronous requests block until the unit resolves and return the
// final record with its output.
//
// The check-then-write against the record store is not transactional:
// two concurrent first requests for the same key can both insert.
// The window is accepted - the records are identical and workers are
// idempotent, so the cost is one redundant execution.
func (self *Dispatcher) Queue(
	ctx context.Context, req *Request) (
	*records.Record, *ordereddict.Dict, error) {

	subject, err := self.subs.Get(req.Sha256Digest, req.FileType)
	if err != nil {
		return nil, nil, err
	}

	scale, err := self.registry.Get(req.Scale, subject.FileType)
	if err != nil {
		return nil, nil, err
	}

	commands, err := scale.GetCommands()
	if err != nil {
		return nil, nil, err
	}

	_, err = commands.Get(req.Command)
	if err != nil {
		return nil, nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = self.config_obj.Worker.DefaultTimeout
	}

	record := records.NewRecord(
		req.Sha256Digest, req.Scale, req.Command, req.Args)
	record.Asynchronous = req.Asynchronous
	record.Timeout = timeout

	existing, err := self.recs.Get(record.Key())
	if err == nil {
		if !existing.Status.Terminal() {
			// Someone is already working on this exact request.
			queueOutcomes.WithLabelValues("deduped").Inc()

			if req.Asynchronous {
				return existing, nil, nil
			}
			return self.await(ctx, existing,
				self.waitForExisting(existing))
		}

		// Latest request wins - the stale result is replaced.
		err = self.recs.Replace(existing, record)
		if err != nil {
			return nil, nil, err
		}
		queueOutcomes.WithLabelValues("replaced").Inc()

	} else if errors.IsNotFound(err) {
		err = self.recs.Put(record)
		if err != nil {
			return nil, nil, err
		}
		queueOutcomes.WithLabelValues("inserted").Inc()

	} else {
		return nil, nil, err
	}

	soft := time.Duration(timeout) * time.Second
	hard := soft + time.Duration(
		self.config_obj.Worker.HardTimeoutGrace)*time.Second

	handle := self.queue.Submit(
		self.executionUnit(subject, record), hard, soft)

	if req.Asynchronous {
		return record, nil, nil
	}

	return self.await(ctx, record, handle)
}

// waitForExisting polls an in-flight record owned by another request
// until it reaches a terminal state.
func (self *Dispatcher) waitForExisting(record *records.Record) Handle {
	handle := newTaskHandle()

	go func() {
		for {
			current, err := self.recs.Get(record.Key())
			if err != nil {
				handle.complete(err)
				return
			}
			if current.Status.Terminal() {
				handle.complete(nil)
				return
			}
			time.Sleep(250 * time.Millisecond)
		}
	}()

	return handle
}

// await blocks a synchronous request on the unit handle and loads
// the final state. A unit level failure (not a recorded command
// failure) is converted into a failed record with a generic error
// output so callers always observe a consistent terminal state. The
// caller still gets the real failure detail - only the persisted
// output is generic.
func (self *Dispatcher) await(
	ctx context.Context, record *records.Record, handle Handle) (
	*records.Record, *ordereddict.Dict, error) {

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()

	case <-handle.Done():
	}

	unit_err := handle.Err()
	if unit_err != nil {
		logging.GetLogger(self.config_obj, &logging.DispatchComponent).
			Error("unit for %v/%v failed: %v",
				record.Scale, record.Command, unit_err)

		finalize_err := self.recs.Finalize(record.Key(), records.FAILED,
			ordereddict.NewDict().Set("error", genericFailure))
		if finalize_err != nil {
			return nil, nil, finalize_err
		}
	}

	final, err := self.recs.Get(record.Key())
	if err != nil {
		return nil, nil, err
	}

	var output *ordereddict.Dict
	if final.OutputID != "" {
		output, err = self.recs.Output(final)
		if err != nil {
			return nil, nil, err
		}
	}

	if unit_err != nil {
		return final, output, errors.New("%v", unit_err)
	}

	return final, output, nil
}

// executionUnit builds the worker closure implementing the execution
// contract: exactly one terminal state is recorded, a failure always
// persists an {error: message} output, and spawned children never
// outlive a timeout.
func (self *Dispatcher) executionUnit(
	subject *subjects.Subject, record *records.Record) UnitFunc {

	return func(ctx context.Context) error {
		logger := logging.GetLogger(
			self.config_obj, &logging.DispatchComponent)
		timer := prometheus.NewTimer(executionDuration)
		defer timer.ObserveDuration()

		key := record.Key()

		err := self.recs.Update(key, ordereddict.NewDict().
			Set("status", string(records.RUNNING)).
			Set("start_time", time.Now().Unix()))
		if err != nil {
			return err
		}

		scale, err := self.registry.Get(record.Scale, subject.FileType)
		if err != nil {
			return self.recs.Finalize(key, records.FAILED,
				ordereddict.NewDict().Set("error", err.Error()))
		}

		commands, err := scale.GetCommands()
		if err != nil {
			return self.recs.Finalize(key, records.FAILED,
				ordereddict.NewDict().Set("error", err.Error()))
		}

		handle, err := subjects.NewHandle(
			self.config_obj, self.files, subject)
		if err != nil {
			logger.Error("unable to materialize %v: %v",
				subject.Sha256Digest, err)
			return self.recs.Finalize(key, records.FAILED,
				ordereddict.NewDict().Set("error", genericFailure))
		}
		defer handle.Close()

		staging_dir, err := utils.TempDirectory(
			self.config_obj.CacheDirectory, "invocation")
		if err != nil {
			return self.recs.Finalize(key, records.FAILED,
				ordereddict.NewDict().Set("error", genericFailure))
		}
		defer os.RemoveAll(staging_dir)

		tracker := scales.NewProcessTracker()
		opts := &scales.InvocationOptions{
			Tracker:    tracker,
			Submitter:  self.submitter,
			StagingDir: staging_dir,
		}

		type invocationResult struct {
			output *ordereddict.Dict
			err    error
		}

		result_ch := make(chan invocationResult, 1)
		go func() {
			output, err := commands.Invoke(ctx, self.config_obj,
				record.Command, record.Args, handle, opts)
			result_ch <- invocationResult{output, err}
		}()

		// The handler gets the full hard window; past it the
		// goroutine is abandoned after its children are reaped.
		hard := time.Duration(record.Timeout)*time.Second +
			time.Duration(self.config_obj.Worker.HardTimeoutGrace)*
				time.Second
		hard_timer := time.NewTimer(hard)
		defer hard_timer.Stop()

		var result invocationResult
		select {
		case result = <-result_ch:

		case <-ctx.Done():
			// Soft limit expired. Give the handler a moment to
			// notice its context before giving up on it.
			select {
			case result = <-result_ch:
			case <-time.After(time.Second):
				result = invocationResult{
					err: errors.NewTimeoutError()}
			}

		case <-hard_timer.C:
			result = invocationResult{err: errors.NewTimeoutError()}
		}

		tracker.KillAll(5 * time.Second)

		if result.err != nil {
			return self.recordFailure(key, record, result.err, logger)
		}

		return self.recs.Finalize(key, records.SUCCESS, result.output)
	}
}

// recordFailure maps errors onto terminal states per the worker
// contract. Domain errors (including timeouts and warnings) are
// recorded quietly; anything unexpected is recorded with the generic
// message and logged loudly.
func (self *Dispatcher) recordFailure(
	key records.Key, record *records.Record,
	err error, logger *logging.LogContext) error {

	message := err.Error()

	switch {
	case errors.IsWarning(err):
		logger.Warn("%v/%v on %v: %v", record.Scale, record.Command,
			record.Sha256Digest, message)

	case errors.IsTimeout(err) || err == context.DeadlineExceeded:
		message = "time limit exceeded"
		logger.Warn("%v/%v on %v timed out", record.Scale,
			record.Command, record.Sha256Digest)

	case errors.IsDomainError(err):
		logger.Warn("%v/%v on %v failed: %v", record.Scale,
			record.Command, record.Sha256Digest, message)

	default:
		logger.Error("%v/%v on %v crashed: %v", record.Scale,
			record.Command, record.Sha256Digest, message)
		message = genericFailure
	}

	return self.recs.Finalize(key, records.FAILED,
		ordereddict.NewDict().Set("error", message))
}
