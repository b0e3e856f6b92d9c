// Package infra contém as implementações concretas dos contratos do pacote domain.
//
//   - WindowGate: gate de janela fixa com fila FIFO e reset periódico (domain.Gate)
//   - ClientBuckets: token bucket por cliente (golang.org/x/time/rate)
//   - NewSlotPool: semáforo em channel para submissões em andamento
//   - Memory/Redis/PrometheusStatsStore: estatísticas de admissão
package infra
