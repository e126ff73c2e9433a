package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/config"
)

// BrokerDialer talks to the session-broker sidecar that owns the actual
// messaging-network connections. The broker writes the credential artifact
// to the path we give it, which keeps the artifact readable by the job
// services on the same volume.
type BrokerDialer struct {
	baseURL string
	client  *http.Client
}

func NewBrokerDialer(baseURL string) *BrokerDialer {
	return &BrokerDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: config.RemoteCallTimeout},
	}
}

func (d *BrokerDialer) Dial(ctx context.Context, credentialPath string) (Conn, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	err := d.post(ctx, "/sessions", map[string]string{"credentialPath": credentialPath}, &resp)
	if err != nil {
		return nil, fmt.Errorf("open broker session: %w", err)
	}

	log.Debug().Str("sessionId", resp.SessionID).Msg("broker session opened")

	return &brokerConn{dialer: d, sessionID: resp.SessionID}, nil
}

type brokerConn struct {
	dialer    *BrokerDialer
	sessionID string
}

func (c *brokerConn) SendCode(ctx context.Context, phone string) (string, error) {
	var resp struct {
		CodeHash string `json:"codeHash"`
	}
	err := c.dialer.post(ctx, "/sessions/"+c.sessionID+"/code",
		map[string]string{"phone": phone}, &resp)
	if err != nil {
		return "", err
	}
	return resp.CodeHash, nil
}

func (c *brokerConn) SignIn(ctx context.Context, phone, codeHash, code string) error {
	return c.dialer.post(ctx, "/sessions/"+c.sessionID+"/sign-in", map[string]string{
		"phone":    phone,
		"codeHash": codeHash,
		"code":     code,
	}, nil)
}

func (c *brokerConn) CheckPassword(ctx context.Context, password string) error {
	return c.dialer.post(ctx, "/sessions/"+c.sessionID+"/password",
		map[string]string{"password": password}, nil)
}

func (c *brokerConn) Close() error {
	req, err := http.NewRequest(http.MethodDelete, c.dialer.baseURL+"/sessions/"+c.sessionID, nil)
	if err != nil {
		return err
	}

	resp, err := c.dialer.client.Do(req)
	if err != nil {
		return fmt.Errorf("close broker session: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the broker already dropped the session; Close must stay
	// idempotent.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("close broker session: status %d", resp.StatusCode)
	}
	return nil
}

type brokerError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (d *BrokerDialer) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode broker response: %w", err)
		}
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var bErr brokerError
	if json.Unmarshal(data, &bErr) == nil {
		switch bErr.Code {
		case "NEEDS_PASSWORD":
			return ErrNeedsPassword
		case "INVALID_CODE":
			return ErrInvalidCode
		case "EXPIRED_CODE":
			return ErrExpiredCode
		case "INVALID_PASSWORD":
			return ErrInvalidPassword
		}
	}

	return fmt.Errorf("broker returned status %d: %s", resp.StatusCode, string(data))
}
