// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package broker

import (
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"time"

	"github.com/rish9101/LibAFL/pkg/log"
)

const rpcName = "Broker"

// Server accepts worker connections and feeds their messages to a Hub.
type Server struct {
	ln net.Listener
	s  *rpc.Server
}

func NewServer(addr string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}
	s := rpc.NewServer()
	if err := s.RegisterName(rpcName, &rpcHub{hub}); err != nil {
		ln.Close()
		return nil, err
	}
	return &Server{
		ln: ln,
		s:  s,
	}, nil
}

// Serve accepts connections until Close is called.
func (serv *Server) Serve() error {
	for {
		conn, err := serv.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Logf(0, "failed to accept a broker connection: %v", err)
			continue
		}
		setupKeepAlive(conn, time.Minute)
		go serv.s.ServeConn(newFlateConn(conn))
	}
}

func (serv *Server) Addr() net.Addr {
	return serv.ln.Addr()
}

func (serv *Server) Close() error {
	return serv.ln.Close()
}

type rpcClient struct {
	conn net.Conn
	c    *rpc.Client
}

func dial(addr string) (*rpcClient, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Minute)
	if err != nil {
		return nil, err
	}
	setupKeepAlive(conn, time.Minute)
	return &rpcClient{
		conn: conn,
		c:    rpc.NewClient(newFlateConn(conn)),
	}, nil
}

func (cli *rpcClient) call(method string, args, reply any) error {
	cli.conn.SetDeadline(time.Now().Add(time.Minute))
	defer cli.conn.SetDeadline(time.Time{})
	return cli.c.Call(rpcName+"."+method, args, reply)
}

func (cli *rpcClient) close() error {
	return cli.c.Close()
}

func setupKeepAlive(conn net.Conn, keepAlive time.Duration) {
	conn.(*net.TCPConn).SetKeepAlive(true)
	conn.(*net.TCPConn).SetKeepAlivePeriod(keepAlive)
}

// flateConn wraps net.Conn in flate.Reader/Writer for compressed traffic.
type flateConn struct {
	r io.ReadCloser
	w *flate.Writer
	c io.Closer
}

func newFlateConn(conn io.ReadWriteCloser) io.ReadWriteCloser {
	w, err := flate.NewWriter(conn, 9)
	if err != nil {
		panic(err)
	}
	return &flateConn{
		r: flate.NewReader(conn),
		w: w,
		c: conn,
	}
}

func (fc *flateConn) Read(data []byte) (int, error) {
	return fc.r.Read(data)
}

func (fc *flateConn) Write(data []byte) (int, error) {
	n, err := fc.w.Write(data)
	if err != nil {
		return n, err
	}
	if err := fc.w.Flush(); err != nil {
		return n, err
	}
	return n, nil
}

func (fc *flateConn) Close() error {
	var err0 error
	if err := fc.r.Close(); err != nil {
		err0 = err
	}
	if err := fc.w.Close(); err != nil {
		err0 = err
	}
	if err := fc.c.Close(); err != nil {
		err0 = err
	}
	return err0
}
