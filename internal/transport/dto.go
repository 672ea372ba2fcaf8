package transport

type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
}

type SetQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type ToggleWishListRequest struct {
	ProductID int64 `json:"product_id"`
}

type WishListResponse struct {
	ProductIDs []int64 `json:"product_ids"`
	Busy       bool    `json:"busy"`
}

type CheckoutRequest struct {
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
}

type PartialCheckoutResponse struct {
	OrderID int64  `json:"order_id"`
	Created int    `json:"created"`
	Total   int    `json:"total"`
	Error   string `json:"error"`
}

type PendingCheckoutResponse struct {
	OrderID int64  `json:"order_id"`
	Message string `json:"message"`
}

type UpdateOrderRequest struct {
	Address       string `json:"address,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}
