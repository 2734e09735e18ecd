/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package nlqueue implements the message-queue multiplexer of spec §4.3: a
// per-sequence-number FIFO of raw byte buffers inside one logical socket.
// It is grounded directly on pyroute2.netlink.core.CoreMessageQueue
// (ensure_tag/free_tag/put_nowait/get), translated from asyncio.Queue to
// buffered Go channels.
package nlqueue

import (
	"context"
	"sync"
)

const rootTag uint32 = 0

// queueDepth bounds how many unread frames a sequence can accumulate
// before PutNowait starts discarding the oldest frame; generous enough for a
// dump's reply burst.
const queueDepth = 256

// Queue holds one FIFO channel per netlink sequence number, with tag 0
// reserved as the root queue that catches broadcasts and replies to
// sequence numbers nobody is listening for.
type Queue struct {
	mu     sync.Mutex
	queues map[uint32]chan []byte
	closed bool
}

// New returns a Queue with its root queue already created.
func New() *Queue {
	q := &Queue{queues: make(map[uint32]chan []byte)}
	q.queues[rootTag] = make(chan []byte, queueDepth)
	return q
}

// EnsureTag creates the queue for seq if it doesn't already exist.
func (q *Queue) EnsureTag(seq uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.queues[seq]; !ok {
		q.queues[seq] = make(chan []byte, queueDepth)
	}
}

// FreeTag removes the queue for seq. Safe to call even if nothing is
// reading from it; any buffered frames are discarded.
func (q *Queue) FreeTag(seq uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq == rootTag {
		return
	}
	if ch, ok := q.queues[seq]; ok {
		delete(q.queues, seq)
		close(ch)
	}
}

// PutNowait enqueues b on seq's queue, or on the root queue if seq is
// unknown -- this is how broadcasts and unmatched replies are preserved
// instead of dropped (spec §4.3).
func (q *Queue) PutNowait(seq uint32, b []byte) {
	q.mu.Lock()
	ch, ok := q.queues[seq]
	if !ok {
		ch = q.queues[rootTag]
	}
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	select {
	case ch <- b:
	default:
		// Queue full: drop the oldest frame to make room rather than
		// block the single receive goroutine that feeds this queue.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- b:
		default:
		}
	}
}

// Get awaits the next frame for seq, or ctx's cancellation. A nil slice
// with a nil error indicates the queue was closed (spec §5 cancellation:
// "enqueues an empty terminator on every open queue").
func (q *Queue) Get(ctx context.Context, seq uint32) ([]byte, error) {
	q.mu.Lock()
	ch, ok := q.queues[seq]
	if !ok {
		ch = q.queues[rootTag]
	}
	q.mu.Unlock()
	select {
	case b, open := <-ch:
		if !open {
			return nil, nil
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close enqueues a nil terminator on every open queue and marks the Queue
// closed, waking every in-flight Get (spec §5 cancellation).
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for seq, ch := range q.queues {
		select {
		case ch <- nil:
		default:
		}
		if seq != rootTag {
			close(ch)
		}
	}
}

// ConnReset enqueues a synthetic ECONNRESET NLMSG_ERROR frame on the root
// queue so any consumer awaiting a reply wakes with a meaningful error
// instead of hanging forever (spec §4.3).
func (q *Queue) ConnReset(frame []byte) {
	q.PutNowait(rootTag, frame)
}
