package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListProducts returns all products, or only those owned by userID when it
// is non-zero.
func (c *Client) ListProducts(ctx context.Context, userID int64) ([]Product, error) {
	path := "/products"
	if userID != 0 {
		path += "?" + url.Values{"user_id": {strconv.FormatInt(userID, 10)}}.Encode()
	}
	var out []Product
	if err := c.do(ctx, "products.list", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	var out Product
	err := c.do(ctx, "products.get", http.MethodGet, productPath(id), nil, &out)
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var out Product
	err := c.do(ctx, "products.create", http.MethodPost, "/products", in, &out)
	return out, err
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	var out Product
	err := c.do(ctx, "products.update", http.MethodPut, productPath(id), in, &out)
	return out, err
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, "products.delete", http.MethodDelete, productPath(id), nil, nil)
}

func productPath(id int64) string { return "/products/" + strconv.FormatInt(id, 10) }
