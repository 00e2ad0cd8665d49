package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTExecutor talks to a store exposing Redis commands over HTTP: each command
// is POSTed as a JSON array and answered with {"result": ...} or {"error": "..."}.
type RESTExecutor struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewRESTExecutor(baseURL, token string, client *http.Client) *RESTExecutor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    client,
	}
}

type restReply struct {
	Result any     `json:"result"`
	Error  *string `json:"error"`
}

func (e *RESTExecutor) Execute(ctx context.Context, cmd Command, args ...any) (any, error) {
	if !cmd.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	body, status, err := e.post(ctx, e.baseURL, commandArgs(cmd, args))
	if err != nil {
		return nil, &TransportError{Cmd: cmd, Err: err}
	}

	var reply restReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &TransportError{Cmd: cmd, Err: fmt.Errorf("status %d: decode reply: %w", status, err)}
	}
	if reply.Error != nil {
		return nil, &CommandError{Cmd: cmd, Status: *reply.Error}
	}
	if status/100 != 2 {
		return nil, &CommandError{Cmd: cmd, Status: http.StatusText(status)}
	}
	return reply.Result, nil
}

// ExecuteTx posts the ops to the /multi-exec endpoint.
func (e *RESTExecutor) ExecuteTx(ctx context.Context, ops ...Op) ([]any, error) {
	payload := make([][]any, len(ops))
	for i, op := range ops {
		if !op.Cmd.valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, op.Cmd)
		}
		payload[i] = commandArgs(op.Cmd, op.Args)
	}

	const multi = Command("multi")
	body, status, err := e.post(ctx, e.baseURL+"/multi-exec", payload)
	if err != nil {
		return nil, &TransportError{Cmd: multi, Err: err}
	}

	if status/100 != 2 {
		var reply restReply
		if err := json.Unmarshal(body, &reply); err == nil && reply.Error != nil {
			return nil, &CommandError{Cmd: multi, Status: *reply.Error}
		}
		return nil, &CommandError{Cmd: multi, Status: http.StatusText(status)}
	}

	var replies []restReply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, &TransportError{Cmd: multi, Err: fmt.Errorf("decode reply: %w", err)}
	}
	if len(replies) != len(ops) {
		return nil, &TransportError{Cmd: multi, Err: fmt.Errorf("got %d replies for %d commands", len(replies), len(ops))}
	}

	out := make([]any, len(replies))
	for i, r := range replies {
		if r.Error != nil {
			return nil, &CommandError{Cmd: ops[i].Cmd, Status: *r.Error}
		}
		out[i] = r.Result
	}
	return out, nil
}

func (e *RESTExecutor) post(ctx context.Context, url string, payload any) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if len(body) == 0 {
		return nil, resp.StatusCode, errors.New("empty reply")
	}
	return body, resp.StatusCode, nil
}
