package nas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/abonix/internal/gateway/domain"
)

// AgentConfig tunes the HTTP client used to reach NAS agents.
type AgentConfig struct {
	// Timeout bounds a single request.
	Timeout time.Duration
	// RetryMax bounds the total backoff window for transient failures.
	RetryMax time.Duration
	// Port the agent listens on.
	Port int
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Timeout:  5 * time.Second,
		RetryMax: 15 * time.Second,
		Port:     3030,
	}
}

type agentFactory struct {
	cfg    AgentConfig
	client *http.Client
}

// NewAgentFactory builds managers for the "agent" gateway type: a small HTTP
// daemon colocated with the access server.
func NewAgentFactory(cfg AgentConfig) domain.ManagerFactory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAgentConfig().Timeout
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultAgentConfig().RetryMax
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultAgentConfig().Port
	}
	return &agentFactory{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (f *agentFactory) Type() string { return "agent" }

func (f *agentFactory) New(nas domain.NAS) domain.Manager {
	return &agentManager{
		cfg:    f.cfg,
		client: f.client,
		base:   fmt.Sprintf("http://%s:%d", nas.IPAddress, f.cfg.Port),
		login:  nas.AuthLogin,
		passw:  nas.AuthPassw,
	}
}

type agentManager struct {
	cfg    AgentConfig
	client *http.Client
	base   string
	login  string
	passw  string
}

func (m *agentManager) Ping(ctx context.Context, ip string) error {
	endpoint := m.base + "/api/ping?" + url.Values{"ip": {ip}}.Encode()
	return m.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return m.do(req, "ping")
	})
}

func (m *agentManager) SyncSubscriber(ctx context.Context, state domain.SubscriberState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}
	// The agent applies the full desired state; repeating an unchanged
	// state is a no-op on its side.
	return m.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			m.base+"/api/subscribers/"+state.Username, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return m.do(req, "sync")
	})
}

func (m *agentManager) FreeLease(ctx context.Context, ip string) error {
	return m.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			m.base+"/api/leases?"+url.Values{"ip": {ip}}.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return m.do(req, "free_lease")
	})
}

// retry backs off on transient network errors only; FailedResult is returned
// immediately.
func (m *agentManager) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(m.cfg.RetryMax)),
		ctx,
	)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var netErr *domain.NetworkError
		if errors.As(err, &netErr) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	return err
}

func (m *agentManager) do(req *http.Request, op string) error {
	if m.login != "" {
		req.SetBasicAuth(m.login, m.passw)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("agent returned %d", resp.StatusCode)}
	default:
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.FailedResult{Op: op, Reason: string(reason)}
	}
}
