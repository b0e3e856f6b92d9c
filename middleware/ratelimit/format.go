// formatação de valores numéricos em headers sem passar por fmt.

package ratelimit

import (
	"math"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSeconds arredonda para cima, com mínimo de 1 (Retry-After é inteiro).
func formatSeconds(d time.Duration) string {
	return formatInt(max(1, int(math.Ceil(d.Seconds()))))
}
