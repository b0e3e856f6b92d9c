package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"document-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://ismp.crpt.ru"
	CreatePath     = "/api/v3/lk/documents/create"

	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// APIError é uma resposta fora de 2xx da API remota.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crpt api error: %d - %s", e.StatusCode, e.Body)
}

// GateError é a falha ao obter vaga no gate, antes de qualquer chamada remota.
type GateError struct {
	Err error
}

func (e *GateError) Error() string { return "acquire gate: " + e.Err.Error() }

func (e *GateError) Unwrap() error { return e.Err }

// Client cria documentos na API remota respeitando o gate.
type Client struct {
	gate           domain.Gate
	httpClient     *http.Client
	baseURL        string
	requestTimeout time.Duration
	simulate       time.Duration
	logger         *slog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.requestTimeout = d }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSimulatedLatency troca a chamada HTTP por uma espera de d e uma resposta
// fixa. O gate continua sendo usado normalmente; serve para demo e testes de carga.
func WithSimulatedLatency(d time.Duration) ClientOption {
	return func(c *Client) { c.simulate = d }
}

func NewClient(gate domain.Gate, opts ...ClientOption) (*Client, error) {
	if gate == nil {
		return nil, errors.New("document: gate is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: defaultDialTimeout}).DialContext

	c := &Client{
		gate:           gate,
		httpClient:     &http.Client{Transport: transport},
		baseURL:        DefaultBaseURL,
		requestTimeout: defaultRequestTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("document: invalid base url: %w", err)
	}
	return c, nil
}

// CreateDocument espera a vaga no gate e envia o documento. Retorna o corpo da
// resposta em caso de 2xx.
//
// Erros do gate (domain.ErrGateClosed, cancelamento do ctx) voltam como
// *GateError e podem ser testados com errors.Is ou errors.As. Uma chamada que falha depois da admissão não
// devolve a vaga.
func (c *Client) CreateDocument(ctx context.Context, doc any, signature, productGroup, token string) (string, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return "", &GateError{Err: err}
	}

	req, err := BuildRequest(doc, signature, productGroup)
	if err != nil {
		return "", err
	}

	if c.simulate > 0 {
		return c.fake(ctx, productGroup)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return c.post(ctx, productGroup, token, body)
}

func (c *Client) post(ctx context.Context, productGroup, token string, body []byte) (string, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	endpoint := c.baseURL + CreatePath + "?" + url.Values{"pg": {productGroup}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send document: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("document submitted",
		"request_id", requestID,
		"product_group", productGroup,
		"status", resp.StatusCode,
		"took", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}

func (c *Client) fake(ctx context.Context, productGroup string) (string, error) {
	t := time.NewTimer(c.simulate)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
	}
	return "FAKE_RESPONSE_OK for productGroup=" + productGroup, nil
}
