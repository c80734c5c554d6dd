package firoam

import (
	"context"
	"sync"
)

// Session owns the short-lived vendor bearer token. The mutex makes the
// first-use login single-flight: concurrent callers discovering an empty
// token wait for one login instead of racing their own.
//
// The token is not refreshed proactively. The vendor reports a login-required
// code when it expires, the client invalidates the session and logs in again.
type Session struct {
	mu    sync.Mutex
	token string
}

func (s *Session) Token(ctx context.Context, login func(context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}
	t, err := login(ctx)
	if err != nil {
		return "", err
	}
	s.token = t
	return t, nil
}

func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
