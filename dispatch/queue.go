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
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"www.velocidex.com/golang/basilisk/errors"
)

// A UnitFunc is one queued execution. The context carries the soft
// deadline - a well behaved unit notices expiry and records its own
// failure.
type UnitFunc func(ctx context.Context) error

// Handle tracks a submitted unit. Err is only valid after Done is
// closed.
type Handle interface {
	Done() <-chan struct{}
	Err() error
}

// TaskQueue accepts units with independent soft and hard limits. The
// soft limit cancels the unit's context; the hard limit abandons the
// unit outright and completes the handle with a timeout error.
type TaskQueue interface {
	Submit(unit UnitFunc, hard, soft time.Duration) Handle
}

type taskHandle struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newTaskHandle() *taskHandle {
	return &taskHandle{done: make(chan struct{})}
}

func (self *taskHandle) Done() <-chan struct{} {
	return self.done
}

func (self *taskHandle) Err() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.err
}

// complete is idempotent - a late unit result never overrides the
// hard timeout verdict.
func (self *taskHandle) complete(err error) {
	self.once.Do(func() {
		self.mu.Lock()
		self.err = err
		self.mu.Unlock()
		close(self.done)
	})
}

// PondQueue runs units on a bounded worker pool in process.
type PondQueue struct {
	pool pond.Pool
}

func NewPondQueue(size int) *PondQueue {
	return &PondQueue{pool: pond.NewPool(size)}
}

func (self *PondQueue) Submit(
	unit UnitFunc, hard, soft time.Duration) Handle {

	handle := newTaskHandle()

	ctx, cancel := context.WithTimeout(context.Background(), soft)

	// The hard timer fires even when the unit ignores its context. A
	// goroutine can not be killed, so the unit is abandoned and the
	// handle resolves without it.
	hard_timer := time.AfterFunc(hard, func() {
		cancel()
		handle.complete(errors.NewTimeoutError())
	})

	self.pool.Submit(func() {
		defer cancel()
		defer hard_timer.Stop()

		handle.complete(unit(ctx))
	})

	return handle
}

func (self *PondQueue) Stop() {
	self.pool.StopAndWait()
}
