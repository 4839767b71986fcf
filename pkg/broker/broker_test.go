// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package broker

import (
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, hub *Hub) string {
	serv, err := NewServer("127.0.0.1:0", hub)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- serv.Serve() }()
	t.Cleanup(func() {
		serv.Close()
		assert.NoError(t, <-done)
	})
	return serv.Addr().String()
}

func TestBroker(t *testing.T) {
	hub := NewHub()
	var seen atomic.Int32
	hub.AddHook(func(msg *Message) bool {
		seen.Add(1)
		return true
	})
	addr := startServer(t, hub)

	c1, err := Dial(addr, "worker-0")
	require.NoError(t, err)
	defer c1.Close()
	c2, err := Dial(addr, "worker-1")
	require.NoError(t, err)
	defer c2.Close()
	assert.NotEqual(t, c1.ID(), c2.ID())

	require.NoError(t, c1.Publish(&Message{Tag: TagExecStats, Execs: 100, Crashes: 1}))
	require.NoError(t, c1.Publish(&Message{Tag: TagNewQueueEntry, Hash: 1, Size: 10, Queue: "coverage"}))
	require.NoError(t, c2.Publish(&Message{Tag: TagExecStats, Execs: 50}))
	require.NoError(t, c2.Publish(&Message{Tag: TagNewQueueEntry, Hash: 2, Size: 3, Queue: "timeout"}))
	require.NoError(t, c2.Publish(&Message{Tag: TagNewQueueEntry, Hash: 3, Size: 3, Queue: "coverage"}))
	// Stale stats do not move the counters back.
	require.NoError(t, c1.Publish(&Message{Tag: TagExecStats, Execs: 90}))
	assert.Error(t, c1.Publish(&Message{Tag: 0x99}))

	assert.Equal(t, Totals{
		Clients:      2,
		Execs:        150,
		Crashes:      1,
		QueueEntries: 3,
	}, hub.Totals())
	assert.Equal(t, int32(7), seen.Load())

	want := []ClientStats{
		{ID: c1.ID(), Name: "worker-0", Execs: 100, Crashes: 1, QueueEntries: 1},
		{ID: c2.ID(), Name: "worker-1", Execs: 50, QueueEntries: 2},
	}
	if diff := cmp.Diff(want, hub.Clients(), cmpopts.IgnoreFields(ClientStats{}, "LastSeen")); diff != "" {
		t.Fatal(diff)
	}
}

func TestHookDrops(t *testing.T) {
	hub := NewHub()
	hub.AddHook(func(msg *Message) bool {
		return msg.Tag != TagNewQueueEntry
	})
	id := hub.connect("local")
	require.NoError(t, hub.handle(&Message{Tag: TagNewQueueEntry, Client: id}))
	require.NoError(t, hub.handle(&Message{Tag: TagExecStats, Client: id, Execs: 5}))
	assert.Equal(t, Totals{Clients: 1, Execs: 5}, hub.Totals())
}

func TestUnknownClient(t *testing.T) {
	hub := NewHub()
	assert.Error(t, hub.handle(&Message{Tag: TagExecStats, Client: 42}))
}

func TestDialFails(t *testing.T) {
	hub := NewHub()
	serv, err := NewServer("127.0.0.1:0", hub)
	require.NoError(t, err)
	addr := serv.Addr().String()
	serv.Close()
	_, err = Dial(addr, "late")
	assert.Error(t, err)
}
