// Copyright 2026 The hostbridge Authors
// This file is part of the hostbridge library.
//
// The hostbridge library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The hostbridge library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the hostbridge library. If not, see <http://www.gnu.org/licenses/>.

package event

import "sync"

// Feed delivers every sent value to each subscribed channel. Sends are
// serialized and a send waits for every subscriber, so receivers should be
// buffered. The zero value is ready to use.
type Feed[T any] struct {
	send sync.Mutex // held for the duration of a Send

	mu   sync.Mutex
	subs []*feedSub[T]
}

type feedSub[T any] struct {
	feed *Feed[T]
	ch   chan<- T
	once sync.Once
	quit chan struct{}
	err  chan error
}

// Subscribe registers ch. The next Send delivers to it.
func (f *Feed[T]) Subscribe(ch chan<- T) Subscription {
	sub := &feedSub[T]{feed: f, ch: ch, quit: make(chan struct{}), err: make(chan error)}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

// Send hands v to every subscriber and returns how many received it. A
// subscriber that unsubscribes while Send waits on it is skipped.
func (f *Feed[T]) Send(v T) int {
	f.send.Lock()
	defer f.send.Unlock()

	f.mu.Lock()
	subs := append([]*feedSub[T](nil), f.subs...)
	f.mu.Unlock()

	sent := 0
	for _, sub := range subs {
		select {
		case sub.ch <- v:
			sent++
		case <-sub.quit:
		}
	}
	return sent
}

func (f *Feed[T]) remove(sub *feedSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

func (sub *feedSub[T]) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.quit)
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedSub[T]) Err() <-chan error {
	return sub.err
}
