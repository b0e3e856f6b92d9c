package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"document-gateway/middleware/ratelimit/domain"
)

// Creator é o que o Handler precisa do Client.
type Creator interface {
	CreateDocument(ctx context.Context, doc any, signature, productGroup, token string) (string, error)
}

// HandlerOptions configura o endpoint HTTP de criação de documentos.
type HandlerOptions struct {
	Creator Creator
	// RetryAfter é anunciado quando o chamador desiste de esperar o gate
	// (normalmente a janela do gate).
	RetryAfter    time.Duration
	TimeoutStatus int
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

type createBody struct {
	Document     json.RawMessage `json:"document"`
	Signature    string          `json:"signature"`
	ProductGroup string          `json:"product_group"`
}

type errorBody struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// NewHandler devolve o handler de POST /documents. O token do chamador vem em
// Authorization: Bearer e é repassado sem validação.
func NewHandler(opts HandlerOptions) http.Handler {
	if opts.TimeoutStatus == 0 {
		opts.TimeoutStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}

		var body createBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, errorBody{Error: "invalid json: " + err.Error()})
			return
		}
		if len(body.Document) == 0 || body.Signature == "" || body.ProductGroup == "" {
			writeError(w, http.StatusBadRequest, errorBody{Error: "document, signature and product_group are required"})
			return
		}

		resp, err := opts.Creator.CreateDocument(r.Context(), body.Document, body.Signature, body.ProductGroup, token)
		if err != nil {
			handleError(w, r, opts, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(resp))
	})
}

func handleError(w http.ResponseWriter, r *http.Request, opts HandlerOptions, err error) {
	log := opts.Logger.With("key", domain.KeyFromContext(r.Context()), "err", err)

	var (
		apiErr  *APIError
		gateErr *GateError
	)
	switch {
	case errors.Is(err, domain.ErrGateClosed):
		log.Warn("gate closed, rejecting document")
		writeError(w, http.StatusServiceUnavailable, errorBody{Error: "gateway shutting down"})
	case r.Context().Err() != nil:
		// cliente desistiu; não há para quem responder
		log.Debug("client gave up while waiting")
	case errors.As(err, &gateErr) && errors.Is(gateErr.Err, context.DeadlineExceeded):
		// só a espera pelo gate vira 429; timeout da API remota cai em 502
		w.Header().Set("Retry-After", retryAfterSeconds(opts.RetryAfter))
		writeError(w, opts.TimeoutStatus, errorBody{Error: "rate limit window exhausted"})
	case errors.As(err, &apiErr):
		log.Warn("upstream rejected document", "status", apiErr.StatusCode)
		writeError(w, http.StatusBadGateway, errorBody{Error: apiErr.Body, UpstreamStatus: apiErr.StatusCode})
	default:
		log.Error("document submission failed")
		writeError(w, http.StatusBadGateway, errorBody{Error: "upstream unavailable"})
	}
}

// retryAfterSeconds arredonda para cima, com mínimo de 1s.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(1, int(math.Ceil(d.Seconds()))))
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
