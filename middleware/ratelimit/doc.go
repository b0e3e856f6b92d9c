// Package ratelimit fornece adapters HTTP (net/http) para a entrada do gateway de
// documentos: rate limit por cliente e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Gate, erros, stats) sem dependência de net/http
//   - application: casos de uso (admissão no gate, decisão allow/deny, acquire/timeout)
//   - infra: implementações concretas (WindowGate de janela fixa, token bucket,
//     semáforo, stores de estatística)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/IP) e grava no contexto
//  2. Rate limit por cliente: se bloqueado, responde 429
//  3. Limite de concorrência: se não houver vaga, responde 503
//  4. O handler de documentos passa pelo gate (janela fixa, bloqueante) antes de
//     chamar a API remota
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como GATE_WINDOW, GATE_CAPACITY, RATE_RPS, RATE_BURST e CONCURRENCY_MAX.
package ratelimit
