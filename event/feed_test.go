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

import (
	"sync"
	"testing"
	"time"
)

func TestFeedDelivery(t *testing.T) {
	var (
		feed   Feed[string]
		nsubs  = 5
		wg     sync.WaitGroup
		recvd  = make(chan string, nsubs)
		ready  sync.WaitGroup
		scope  Scope
		chans  []chan string
		values = []string{"a", "b"}
	)
	for i := 0; i < nsubs; i++ {
		ch := make(chan string)
		chans = append(chans, ch)
		scope.Track(feed.Subscribe(ch))
	}
	if scope.Count() != nsubs {
		t.Fatalf("scope tracks %d subscriptions, want %d", scope.Count(), nsubs)
	}
	ready.Add(nsubs)
	for _, ch := range chans {
		wg.Add(1)
		go func(ch chan string) {
			defer wg.Done()
			ready.Done()
			for range values {
				recvd <- <-ch
			}
		}(ch)
	}
	ready.Wait()
	go func() {
		for range values {
			for i := 0; i < nsubs; i++ {
				<-recvd
			}
		}
	}()
	for _, v := range values {
		if n := feed.Send(v); n != nsubs {
			t.Fatalf("send %q delivered to %d subscribers, want %d", v, n, nsubs)
		}
	}
	wg.Wait()
	scope.Close()
	if n := feed.Send("after"); n != 0 {
		t.Fatalf("send after close delivered to %d subscribers", n)
	}
}

func TestFeedUnsubscribeBlockedSend(t *testing.T) {
	var (
		feed Feed[int]
		ch   = make(chan int)
		sub  = feed.Subscribe(ch)
		done = make(chan int)
	)
	go func() { done <- feed.Send(1) }()

	// Let Send block on the unbuffered channel, then unsubscribe to release it.
	time.Sleep(20 * time.Millisecond)
	sub.Unsubscribe()
	select {
	case n := <-done:
		if n != 0 {
			t.Fatalf("Send returned %d, want 0", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after Unsubscribe")
	}
	if _, ok := <-sub.Err(); ok {
		t.Fatal("error channel not closed")
	}
}

func TestScopeClosed(t *testing.T) {
	var (
		feed  Feed[int]
		scope Scope
	)
	tracked := scope.Track(feed.Subscribe(make(chan int, 1)))
	if scope.Count() != 1 {
		t.Fatalf("scope tracks %d subscriptions, want 1", scope.Count())
	}
	tracked.Unsubscribe()
	if scope.Count() != 0 {
		t.Fatalf("unsubscribed wrapper still tracked")
	}
	scope.Close()
	sub := feed.Subscribe(make(chan int, 1))
	if scope.Track(sub) != nil {
		t.Fatal("closed scope accepted a subscription")
	}
	if n := feed.Send(1); n != 1 {
		t.Fatalf("untracked subscriber got %d values", n)
	}
}
