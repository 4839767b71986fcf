// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package broker connects fuzzing workers to the process that watches them.
//
// Workers only publish: periodic execution stats and new queue entry
// notifications. Nothing is sent back except the client id on Connect.
package broker

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Message tags.
const (
	TagExecStats     uint32 = 0x30
	TagNewQueueEntry uint32 = 0x31
)

type Message struct {
	Tag    uint32
	Client int
	// Execs and Crashes are the totals of the client so far.
	Execs   uint64
	Crashes uint64
	// Hash and Size describe the new entry for TagNewQueueEntry.
	Hash  uint64
	Size  int
	Queue string
}

type Publisher interface {
	Publish(msg *Message) error
}

type ConnectArgs struct {
	Name string
}

type ConnectRes struct {
	Client int
}

// ClientStats is what the hub knows about one worker.
type ClientStats struct {
	ID           int
	Name         string
	Execs        uint64
	Crashes      uint64
	QueueEntries int
	LastSeen     time.Time
}

// Hook sees every message before it is accounted. Returning false drops the message.
type Hook func(msg *Message) bool

// Hub keeps the registry of connected workers. It is owned by the driver.
type Hub struct {
	mu      sync.Mutex
	clients map[int]*ClientStats
	nextID  int
	hooks   []Hook
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int]*ClientStats),
		nextID:  1,
	}
}

func (h *Hub) AddHook(fn Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

func (h *Hub) connect(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.clients[id] = &ClientStats{
		ID:       id,
		Name:     name,
		LastSeen: time.Now(),
	}
	return id
}

func (h *Hub) handle(msg *Message) error {
	h.mu.Lock()
	hooks := h.hooks
	client := h.clients[msg.Client]
	h.mu.Unlock()
	if client == nil {
		return fmt.Errorf("message from unknown client %v", msg.Client)
	}
	for _, hook := range hooks {
		if !hook(msg) {
			return nil
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	client.LastSeen = time.Now()
	switch msg.Tag {
	case TagExecStats:
		client.Execs = max(client.Execs, msg.Execs)
		client.Crashes = max(client.Crashes, msg.Crashes)
	case TagNewQueueEntry:
		client.QueueEntries++
	default:
		return fmt.Errorf("unknown message tag 0x%x", msg.Tag)
	}
	return nil
}

// Clients returns a snapshot of all workers sorted by id.
func (h *Hub) Clients() []ClientStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var res []ClientStats
	for _, c := range h.clients {
		res = append(res, *c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

type Totals struct {
	Clients      int
	Execs        uint64
	Crashes      uint64
	QueueEntries int
}

func (h *Hub) Totals() Totals {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := Totals{Clients: len(h.clients)}
	for _, c := range h.clients {
		t.Execs += c.Execs
		t.Crashes += c.Crashes
		t.QueueEntries += c.QueueEntries
	}
	return t
}

type rpcHub struct {
	h *Hub
}

func (r *rpcHub) Connect(args *ConnectArgs, res *ConnectRes) error {
	res.Client = r.h.connect(args.Name)
	return nil
}

func (r *rpcHub) Publish(msg *Message, res *int) error {
	return r.h.handle(msg)
}

// Client is the worker side of the broker.
type Client struct {
	mu  sync.Mutex
	rpc *rpcClient
	id  int
}

// Dial connects to the broker at addr and registers as a live worker.
func Dial(addr, name string) (*Client, error) {
	cli, err := dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker %v: %w", addr, err)
	}
	var res ConnectRes
	if err := cli.call("Connect", &ConnectArgs{Name: name}, &res); err != nil {
		cli.close()
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	return &Client{rpc: cli, id: res.Client}, nil
}

func (c *Client) ID() int { return c.id }

func (c *Client) Publish(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Client = c.id
	var res int
	return c.rpc.call("Publish", msg, &res)
}

func (c *Client) Close() error {
	return c.rpc.close()
}
