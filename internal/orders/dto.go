package orders

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type createOrderRequest struct {
	ClientID int64         `json:"client_id" validate:"required,gt=0"`
	Items    []itemRequest `json:"items" validate:"dive"`
}

func (r createOrderRequest) toInput(idempotencyKey string) CreateInput {
	items := make([]ItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return CreateInput{ClientID: r.ClientID, Items: items, IdempotencyKey: idempotencyKey}
}

type updateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	AdminID int64  `json:"admin_id" validate:"gte=0"`
}

type updateStatusResponse struct {
	Status Status `json:"status"`
}

// describeValidation flattens validator errors into one message.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Namespace()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
