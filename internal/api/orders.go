package api

import (
	"context"
	"net/http"
	"strconv"
)

func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.do(ctx, "orders.list", http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUserOrders returns the orders placed from chatID.
func (c *Client) ListUserOrders(ctx context.Context, chatID int64) ([]Order, error) {
	var out []Order
	if err := c.do(ctx, "orders.list_user", http.MethodGet, "/orders/"+strconv.FormatInt(chatID, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (Order, error) {
	var out Order
	err := c.do(ctx, "orders.create", http.MethodPost, "/orders", in, &out)
	return out, err
}

func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.do(ctx, "orders.delete", http.MethodDelete, "/orders/"+strconv.FormatInt(id, 10), nil, nil)
}
