package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Collection names
const (
	CollectionProducts  = "Products"
	CollectionCustomers = "Customers"
	CollectionOrders    = "Orders"
)

// Index names
const (
	IndexProduct   = "ProductIndex"
	IndexOrderDate = "OrderDateIndex"
)

// Attribute names used by the fixed schema
const (
	AttrProductID  = "product_id"
	AttrCustomerID = "customer_id"
	AttrOrderID    = "order_id"
	AttrOrderDate  = "order_date"
	AttrQuantity   = "quantity"
	AttrStatus     = "status"
	AttrTotalPrice = "total_price"
	AttrPrice      = "price"
)

// Order statuses by convention. They are not validated.
const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// Record is a flat set of attributes. Numeric attributes are kept as text.
type Record map[string]string

// Clone returns a copy that does not share the underlying map.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Order is the typed form of an Orders record accepted by the request layer
type Order struct {
	OrderID    string          `json:"order_id" binding:"required"`
	OrderDate  string          `json:"order_date" binding:"required"`
	ProductID  string          `json:"product_id" binding:"required"`
	CustomerID string          `json:"customer_id" binding:"required"`
	Quantity   int             `json:"quantity"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ToRecord converts the order into its stored attribute form
func (o *Order) ToRecord() Record {
	rec := Record{
		AttrOrderID:    o.OrderID,
		AttrOrderDate:  o.OrderDate,
		AttrProductID:  o.ProductID,
		AttrCustomerID: o.CustomerID,
		AttrQuantity:   strconv.Itoa(o.Quantity),
		AttrTotalPrice: o.TotalPrice.String(),
	}
	if o.Status != "" {
		rec[AttrStatus] = o.Status
	}
	return rec
}
