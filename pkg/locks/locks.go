/*
 * Copyright 2023 The any2feed Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package locks provides named mutexes. Locks are created on first use and
// dropped from the registry once nothing holds or waits on them.
package locks

import (
	"fmt"
	"sync"
)

// NamedLocker provides a locker for handling Named Locks
type NamedLocker interface {
	Acquire(string) (NamedLock, error)
	RAcquire(string) (NamedLock, error)
	// Len returns the number of names currently held or awaited
	Len() int
}

// NamedLock defines the interface for implementing Named Locks
type NamedLock interface {
	Release() error
	RRelease() error
}

type namedLocker struct {
	locks map[string]*namedLock
	mtx   sync.Mutex
}

// NewNamedLocker returns a new Named Locker
func NewNamedLocker() NamedLocker {
	return &namedLocker{
		locks: make(map[string]*namedLock),
	}
}

type namedLock struct {
	sync.RWMutex
	name   string
	refs   int // guarded by locker.mtx
	locker *namedLocker
}

func (lk *namedLocker) Len() int {
	lk.mtx.Lock()
	defer lk.mtx.Unlock()
	return len(lk.locks)
}

func (lk *namedLocker) ref(lockName string) *namedLock {
	lk.mtx.Lock()
	defer lk.mtx.Unlock()
	nl, ok := lk.locks[lockName]
	if !ok {
		nl = &namedLock{name: lockName, locker: lk}
		lk.locks[lockName] = nl
	}
	nl.refs++
	return nl
}

func (lk *namedLocker) unref(nl *namedLock) {
	lk.mtx.Lock()
	defer lk.mtx.Unlock()
	nl.refs--
	if nl.refs == 0 {
		delete(lk.locks, nl.name)
	}
}

func (lk *namedLocker) acquire(lockName string, isWrite bool) (NamedLock, error) {
	if lockName == "" {
		return nil, errInvalidLockName(lockName)
	}
	nl := lk.ref(lockName)
	if isWrite {
		nl.Lock()
	} else {
		nl.RLock()
	}
	return nl, nil
}

// Acquire locks the named lock for writing, and blocks until the wlock is acquired
func (lk *namedLocker) Acquire(lockName string) (NamedLock, error) {
	return lk.acquire(lockName, true)
}

// RAcquire locks the named lock for reading, and blocks until the rlock is acquired
func (lk *namedLocker) RAcquire(lockName string) (NamedLock, error) {
	return lk.acquire(lockName, false)
}

func (nl *namedLock) release(unlockFunc func()) error {
	if nl.name == "" || nl.locker == nil {
		return errInvalidLockName(nl.name)
	}
	// unref before unlocking so a waiter that wakes up still finds its
	// own reference in the registry
	nl.locker.unref(nl)
	unlockFunc()
	return nil
}

// Release releases the write lock on the subject Named Lock
func (nl *namedLock) Release() error {
	return nl.release(nl.Unlock)
}

// RRelease releases the read lock on the subject Named Lock
func (nl *namedLock) RRelease() error {
	return nl.release(nl.RUnlock)
}

func errInvalidLockName(name string) error {
	return fmt.Errorf("invalid lock name: %s", name)
}
