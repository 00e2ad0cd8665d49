package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"go-dm/internal/chat"
	"go-dm/internal/chatclient"
	myMiddleware "go-dm/internal/middleware"
	"go-dm/internal/realtime"
	"go-dm/internal/user"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL  string
	wsURL    string
	secret   string
	pairs    int
	messages int
	parallel int
}

type stats struct {
	sent     atomic.Int64
	notified atomic.Int64
	viewed   atomic.Int64
	failed   atomic.Int64
}

func main() {
	var opt options
	flag.StringVar(&opt.baseURL, "base", "http://localhost:8080", "server base url")
	flag.StringVar(&opt.wsURL, "ws", "ws://localhost:8080/ws", "websocket gateway url")
	flag.StringVar(&opt.secret, "secret", "", "session signing secret (DMCHAT_JWT_SECRET of the server)")
	flag.IntVar(&opt.pairs, "pairs", 50, "number of user pairs")
	flag.IntVar(&opt.messages, "messages", 20, "messages per sender")
	flag.IntVar(&opt.parallel, "parallel", 25, "pairs running at once")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if opt.secret == "" {
		logger.Fatal("-secret is required")
	}

	logger.Info("starting stress test", zap.Int("users", opt.pairs*2), zap.Int("messages_per_user", opt.messages))
	start := time.Now()

	var st stats
	run := time.Now().Unix()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(opt.parallel)
	for i := 0; i < opt.pairs; i++ {
		pairID := i
		g.Go(func() error {
			if err := runPair(ctx, opt, run, pairID, &st, logger); err != nil {
				st.failed.Add(1)
				logger.Warn("pair failed", zap.Int("pair", pairID), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	logger.Info("load test complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("sent", st.sent.Load()),
		zap.Int64("unseen_notifications", st.notified.Load()),
		zap.Int64("delivered_to_open_views", st.viewed.Load()),
		zap.Int64("failed_pairs", st.failed.Load()),
	)
}

// runPair makes A and B friends, then A writes to B twice: once while B is away
// (B's unseen count grows) and once while B has the conversation open.
func runPair(ctx context.Context, opt options, run int64, pairID int, st *stats, logger *zap.Logger) error {
	a := user.User{ID: fmt.Sprintf("lt%d_%d_a", run, pairID), Name: fmt.Sprintf("Load A%d", pairID)}
	b := user.User{ID: fmt.Sprintf("lt%d_%d_b", run, pairID), Name: fmt.Sprintf("Load B%d", pairID)}
	a.Email = a.ID + "@loadtest.local"
	b.Email = b.ID + "@loadtest.local"

	api := &apiClient{base: opt.baseURL}
	tokenA, err := api.signIn(ctx, opt.secret, a)
	if err != nil {
		return err
	}
	tokenB, err := api.signIn(ctx, opt.secret, b)
	if err != nil {
		return err
	}

	if err := api.post(ctx, tokenA, "/api/friends/add", map[string]string{"email": b.Email}, nil); err != nil {
		return err
	}
	if err := api.post(ctx, tokenB, "/api/friends/accept", map[string]string{"id": a.ID}, nil); err != nil {
		return err
	}

	sub, err := chatclient.Dial(ctx, opt.wsURL, tokenB, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	session, err := chatclient.NewSession(ctx, sub, b.ID, func(realtime.SidebarMessage) {
		st.notified.Add(1)
	}, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	key := chat.ConversationKey(a.ID, b.ID)
	if err := sendBurst(ctx, api, tokenA, key, opt.messages, st); err != nil {
		return err
	}
	if err := waitFor(ctx, func() (bool, error) {
		counts, err := session.UnseenCounts(ctx)
		return counts[a.ID] == opt.messages, err
	}); err != nil {
		return fmt.Errorf("unseen count for %s: %w", a.ID, err)
	}

	var history chat.Conversation
	if err := api.get(ctx, tokenB, "/api/chats/"+key+"/messages", &history); err != nil {
		return err
	}
	view, err := session.Enter(ctx, key, history.Messages)
	if err != nil {
		return err
	}
	defer view.Close()

	if err := sendBurst(ctx, api, tokenA, key, opt.messages, st); err != nil {
		return err
	}
	return waitFor(ctx, func() (bool, error) {
		msgs, err := view.Messages(ctx)
		if len(msgs) == 2*opt.messages {
			st.viewed.Add(int64(opt.messages))
			return true, err
		}
		return false, err
	})
}

func sendBurst(ctx context.Context, api *apiClient, token, key string, n int, st *stats) error {
	for i := 0; i < n; i++ {
		body := map[string]string{"chatId": key, "text": fmt.Sprintf("LoadTest Msg %d", i)}
		if err := api.post(ctx, token, "/api/message/send", body, nil); err != nil {
			return err
		}
		st.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func waitFor(ctx context.Context, done func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type apiClient struct {
	base string
}

// signIn mints a session token the way the identity provider would and records
// the profile with the server.
func (c *apiClient) signIn(ctx context.Context, secret string, u user.User) (string, error) {
	token, err := myMiddleware.SignSession(secret, u, time.Hour)
	if err != nil {
		return "", err
	}
	if err := c.post(ctx, token, "/api/users/me", nil, nil); err != nil {
		return "", err
	}
	return token, nil
}

func (c *apiClient) post(ctx context.Context, token, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(buf)
	}
	return c.do(ctx, http.MethodPost, token, path, payload, out)
}

func (c *apiClient) get(ctx context.Context, token, path string, out any) error {
	return c.do(ctx, http.MethodGet, token, path, nil, out)
}

func (c *apiClient) do(ctx context.Context, method, token, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
