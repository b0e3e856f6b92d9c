// Package document envia documentos de introdução de mercadorias para a API do
// Честный ЗНАК (CRPT), sempre passando por um domain.Gate antes de cada chamada.
//
// O gate é a única proteção contra exceder a cota da API remota: cada
// CreateDocument chama Gate.Acquire exatamente uma vez, e a vaga não volta se a
// chamada falhar. Não há retry nem obtenção de token aqui; o token chega pronto.
package document
