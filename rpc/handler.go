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

package rpc

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/scriptbridge/hostbridge/log"
)

type (
	clientKey   struct{}
	peerInfoKey struct{}
)

// ClientFromContext returns the client of the connection a call arrived on. A
// method handler uses it to call back into the remote side.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok
}

// PeerInfoFromContext describes the connection a call arrived on. The zero value
// is returned outside of method handlers.
func PeerInfoFromContext(ctx context.Context) PeerInfo {
	info, _ := ctx.Value(peerInfoKey{}).(PeerInfo)
	return info
}

// handler serves one connection. Incoming calls run on their own goroutines
// against the service registry, responses are routed to the outgoing calls
// waiting for them.
type handler struct {
	conn codec
	reg  *serviceRegistry
	log  log.Logger

	// ctx is the parent of every incoming call and carries the client and the
	// peer info. It is canceled when the connection goes away.
	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup

	mu      sync.Mutex
	waiting map[string]chan *message
	err     error
}

func newHandler(c *Client, conn codec, reg *serviceRegistry) *handler {
	info := conn.peer()
	ctx := context.WithValue(context.Background(), clientKey{}, c)
	ctx = context.WithValue(ctx, peerInfoKey{}, info)
	ctx, cancel := context.WithCancel(ctx)

	logger := log.Root().New("transport", info.Transport)
	if info.RemoteAddr != "" {
		logger = logger.New("conn", info.RemoteAddr)
	}
	return &handler{
		conn:    conn,
		reg:     reg,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		waiting: make(map[string]chan *message),
	}
}

// handle dispatches a message read from the connection.
func (h *handler) handle(msg *message) {
	switch msg.kind() {
	case responseMessage:
		h.deliver(msg)
	case callMessage, notificationMessage:
		h.calls.Add(1)
		go func() {
			defer h.calls.Done()
			h.serve(msg)
		}()
	default:
		h.log.Debug("Rejecting invalid message", "msg", msg)
		h.conn.write(h.ctx, msg.fail(&invalidRequestError{"invalid request"}))
	}
}

// expect registers interest in the response carrying id.
func (h *handler) expect(id string) (<-chan *message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return nil, ErrClientQuit
	}
	ch := make(chan *message, 1)
	h.waiting[id] = ch
	return ch, nil
}

// forget drops interest in a response, after a failed write or a canceled call.
func (h *handler) forget(id string) {
	h.mu.Lock()
	delete(h.waiting, id)
	h.mu.Unlock()
}

func (h *handler) deliver(msg *message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.waiting[string(msg.ID)]
	if !ok {
		h.log.Debug("Unsolicited RPC response", "reqid", string(msg.ID))
		return
	}
	delete(h.waiting, string(msg.ID))
	ch <- msg
}

// failure returns the error outgoing calls fail with once the connection is gone.
func (h *handler) failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// shutdown fails all waiting calls with err, cancels incoming calls and waits
// for them to return. The codec must already be closed.
func (h *handler) shutdown(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	waiting := h.waiting
	h.waiting = make(map[string]chan *message)
	h.mu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
	h.cancel()
	h.calls.Wait()
}

// serve runs an incoming call and writes its response.
func (h *handler) serve(msg *message) {
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	start := time.Now()
	resp := h.run(ctx, msg)
	elapsed := time.Since(start)
	rpcRequestGauge.Inc()
	rpcServingTimer.Observe(elapsed.Seconds())
	updateServeTimeHistogram(msg.Method, resp.Error == nil, elapsed)

	if resp.Error != nil {
		failedRequestGauge.Inc()
		h.log.Warn("Served "+msg.Method, "reqid", string(msg.ID), "duration", elapsed, "err", resp.Error.Message, "type", ErrorType(resp.Error))
	} else {
		successfulRequestGauge.Inc()
		h.log.Debug("Served "+msg.Method, "reqid", string(msg.ID), "duration", elapsed)
	}
	if msg.kind() == notificationMessage {
		return
	}
	if err := h.conn.write(ctx, resp); err != nil {
		h.log.Debug("Failed to write response", "method", msg.Method, "err", err)
	}
}

func (h *handler) run(ctx context.Context, msg *message) *message {
	cb := h.reg.callback(msg.Method)
	if cb == nil {
		return msg.fail(&methodNotFoundError{msg.Method})
	}
	args, err := decodeParams(msg.Params, cb.argTypes)
	if err != nil {
		return msg.fail(&invalidParamsError{err.Error()})
	}
	result, err := cb.call(ctx, msg.Method, args)
	if err != nil {
		return msg.fail(typedError(err))
	}
	return msg.reply(result)
}

// ErrorData is attached to the error of every failed call so that the caller
// can tell errors apart by type.
type ErrorData struct {
	Type string `json:"type"`
}

// methodError carries an error returned by a service method to the caller.
type methodError struct {
	err error
	typ string
}

// typedError prepares err for the wire. Errors that bring their own data are
// sent as they are.
func typedError(err error) error {
	switch err.(type) {
	case DataError, *internalServerError:
		return err
	}
	return &methodError{err: err, typ: errorTypeName(err)}
}

func (e *methodError) Error() string { return e.err.Error() }

func (e *methodError) Unwrap() error { return e.err }

func (e *methodError) ErrorCode() int {
	var coded Error
	if errors.As(e.err, &coded) {
		return coded.ErrorCode()
	}
	return errcodeDefault
}

func (e *methodError) ErrorData() interface{} { return ErrorData{Type: e.typ} }

// errorTypeName names err for the caller: the ErrorType of a TypedError in the
// chain, or else the Go type name of the innermost error.
func errorTypeName(err error) string {
	var typed TypedError
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(err) {
		err = inner
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}
	return t.Name()
}

// ErrorType returns the type name the remote side attached to an error
// response, or the empty string if there is none.
func ErrorType(err error) string {
	var de DataError
	if !errors.As(err, &de) {
		return ""
	}
	switch data := de.ErrorData().(type) {
	case ErrorData:
		return data.Type
	case map[string]interface{}:
		typ, _ := data["type"].(string)
		return typ
	}
	return ""
}
