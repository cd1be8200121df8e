package terminal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robopilot/robopilot/internal/logger"
	"github.com/robopilot/robopilot/internal/market"
)

// Manager hands out sessions against the single external terminal. The
// terminal holds one authenticated login at a time, so acquiring a new
// session logs out and invalidates the previous one.
type Manager struct {
	client *Client
	logger *logger.Logger

	mu      sync.Mutex
	current *Session
}

func NewManager(client *Client, log *logger.Logger) *Manager {
	return &Manager{client: client, logger: log}
}

// Acquire authenticates the given account and returns a live session. The
// caller must Close it on every exit path.
func (m *Manager) Acquire(ctx context.Context, creds Credentials) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.invalidate()
		m.current = nil
	}

	if err := m.client.login(ctx, creds); err != nil {
		return nil, err
	}

	s := &Session{client: m.client, manager: m, login: creds.Login}
	m.current = s
	m.logger.Info("terminal session acquired", "login", creds.Login)
	return s, nil
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.current = nil
	}
}

// Client exposes the underlying bridge client for unauthenticated probes
// (ping, terminal info).
func (m *Manager) Client() *Client { return m.client }

// Session is an authenticated, exclusive terminal login.
type Session struct {
	client  *Client
	manager *Manager
	login   string

	mu     sync.Mutex
	closed bool
}

// Close logs the session out. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.manager.release(s)
	if err := s.client.logout(ctx); err != nil {
		s.manager.logger.Warn("terminal logout failed", "login", s.login, "error", err)
		return err
	}
	return nil
}

// invalidate marks the session dead without a logout round-trip; used when a
// newer session takes over the terminal.
func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Account returns the authenticated account's state.
func (s *Session) Account(ctx context.Context) (*AccountInfo, error) {
	return s.client.Account(ctx)
}

// TerminalInfo returns the terminal's connectivity state.
func (s *Session) TerminalInfo(ctx context.Context) (*Info, error) {
	return s.client.TerminalInfo(ctx)
}

// Candles fetches a history range for a symbol already resolved via
// ResolveSymbol.
func (s *Session) Candles(ctx context.Context, symbol string, tf market.Timeframe, from, to time.Time) ([]market.Candle, error) {
	return s.client.Candles(ctx, symbol, tf, from, to)
}

// ResolveSymbol matches the requested symbol against the terminal's tradable
// list: exact match first, then the first case-insensitive substring match.
func (s *Session) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	symbols, err := s.client.Symbols(ctx)
	if err != nil {
		return "", err
	}

	for _, sym := range symbols {
		if sym == symbol {
			return sym, nil
		}
	}

	needle := strings.ToLower(symbol)
	for _, sym := range symbols {
		if strings.Contains(strings.ToLower(sym), needle) {
			return sym, nil
		}
	}

	return "", &SymbolUnavailableError{Symbol: symbol}
}

// Login returns the account login this session authenticates.
func (s *Session) Login() string { return s.login }
