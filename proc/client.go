package proc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/randalmurphal/runtimekit/runtime"
	"github.com/randalmurphal/runtimekit/workercontract"
)

// client performs one-connection-per-call JSON exchanges against a worker
// socket. Transport and protocol failures reject only the call they occur
// on; the next call dials fresh.
type client struct {
	socketPath  string
	dialTimeout time.Duration

	// callTimeout bounds one whole exchange. Zero leaves calls unbounded:
	// an unresponsive worker then holds its caller until the worker dies
	// or the context is canceled.
	callTimeout time.Duration
}

// send writes one request, half-closes, and reads the single JSON response
// the worker replies with before closing.
func (c *client) send(ctx context.Context, req workercontract.Request) (workercontract.Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return workercontract.Response{}, err
	}
	defer conn.Close()
	defer c.armDeadlines(ctx, conn)()

	if err := writeRequest(conn, req); err != nil {
		return workercontract.Response{}, err
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return workercontract.Response{}, ctxErr
		}
		return workercontract.Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp workercontract.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return workercontract.Response{}, fmt.Errorf("%w: invalid response: %v", runtime.ErrProtocol, err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%w: %s", runtime.ErrWorker, resp.Error)
	}
	return resp, nil
}

// sendStreaming writes one request and consumes newline-delimited frames:
// chunk frames invoke onChunk synchronously in arrival order; a done frame
// returns the final message; an error frame returns the worker's failure.
// A connection that closes without a terminal frame returns ErrStreamEnded
// rather than hanging or resolving.
func (c *client) sendStreaming(ctx context.Context, req workercontract.Request, onChunk func(string)) (*runtime.Message, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer c.armDeadlines(ctx, conn)()

	if err := writeRequest(conn, req); err != nil {
		return nil, err
	}

	// bufio buffers partial lines across socket reads; a frame is parsed
	// only once its terminating newline has arrived.
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, io.EOF) {
				if len(bytes.TrimSpace(line)) > 0 {
					return nil, fmt.Errorf("%w: connection closed mid-frame", runtime.ErrStreamEnded)
				}
				return nil, runtime.ErrStreamEnded
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		var frame workercontract.StreamFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("%w: malformed frame: %v", runtime.ErrProtocol, err)
		}
		if err := frame.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", runtime.ErrProtocol, err)
		}

		switch frame.Type {
		case workercontract.FrameChunk:
			if onChunk != nil {
				onChunk(frame.Chunk)
			}
		case workercontract.FrameDone:
			return frame.Message, nil
		case workercontract.FrameError:
			return nil, fmt.Errorf("%w: %s", runtime.ErrWorker, frame.Error)
		}
	}
}

func (c *client) dial(ctx context.Context) (*net.UnixConn, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.socketPath, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected connection type %T", conn)
	}
	return uc, nil
}

// armDeadlines applies the per-call timeout and cancels the connection
// when ctx is done, so a blocked read unblocks. The returned func releases
// the context hook.
func (c *client) armDeadlines(ctx context.Context, conn *net.UnixConn) func() {
	if c.callTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.callTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return func() { stop() }
}

// writeRequest sends the full JSON request and half-closes the write side,
// signaling the worker that the request is complete.
func writeRequest(conn *net.UnixConn, req workercontract.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if err := conn.CloseWrite(); err != nil {
		return fmt.Errorf("half-close request: %w", err)
	}
	return nil
}
