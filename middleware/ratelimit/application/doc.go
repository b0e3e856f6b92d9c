// Package application contém os casos de uso (regras de aplicação) do gateway:
// admissão no gate de janela fixa, rate limit por cliente e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: AdmissionService.Admit(ctx, key) bloqueia até o gate liberar;
// ConcurrencyService.Acquire(ctx, key) espera uma vaga de envio;
// Service.Decide(ctx, req) retorna uma Decision (allow/deny + retry-after).
package application
