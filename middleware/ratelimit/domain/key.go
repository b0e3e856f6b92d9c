package domain

import "context"

type keyCtx struct{}

// WithKey grava a chave do cliente no contexto, para que camadas seguintes
// (gate, estatísticas) usem a mesma identificação sem conhecer HTTP.
func WithKey(ctx context.Context, key Key) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFromContext devolve a chave gravada por WithKey, ou "" se não houver.
func KeyFromContext(ctx context.Context) Key {
	k, _ := ctx.Value(keyCtx{}).(Key)
	return k
}
