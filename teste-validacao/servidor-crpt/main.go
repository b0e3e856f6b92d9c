// Servidor falso da API de documentos para testar o gateway localmente:
//
//	go run ./teste-validacao/servidor-crpt
//	CRPT_BASE_URL=http://localhost:8081 go run ./cmd/gateway
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"document-gateway/document"
)

func main() {
	var count atomic.Int64
	var last atomic.Int64

	http.HandleFunc(document.CreatePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req document.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		now := time.Now().UnixMilli()
		gap := time.Duration(now-last.Swap(now)) * time.Millisecond
		n := count.Add(1)
		slog.Info("document received",
			"n", n,
			"pg", r.URL.Query().Get("pg"),
			"type", req.Type,
			"request_id", r.Header.Get("X-Request-Id"),
			"since_previous", gap,
		)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"value": n})
	})

	slog.Info("fake crpt api listening", "addr", ":8081")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		slog.Error("server error", "err", err)
	}
}
