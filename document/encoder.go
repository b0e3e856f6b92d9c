package document

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	FormatManual       = "MANUAL"
	TypeIntroduceGoods = "LP_INTRODUCE_GOODS"
)

// CreateRequest é o corpo enviado para /api/v3/lk/documents/create.
type CreateRequest struct {
	DocumentFormat  string `json:"document_format"`
	ProductDocument string `json:"product_document"`
	ProductGroup    string `json:"product_group"`
	Signature       string `json:"signature"`
	Type            string `json:"type"`
}

// Encode serializa o documento em JSON e devolve o JSON em base64 padrão.
func Encode(doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func BuildRequest(doc any, signature, productGroup string) (CreateRequest, error) {
	encoded, err := Encode(doc)
	if err != nil {
		return CreateRequest{}, err
	}
	return CreateRequest{
		DocumentFormat:  FormatManual,
		ProductDocument: encoded,
		ProductGroup:    productGroup,
		Signature:       signature,
		Type:            TypeIntroduceGoods,
	}, nil
}
