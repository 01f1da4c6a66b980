package api

import (
	"context"
	"net/http"
	"strconv"
)

// CheckUser returns the role string recorded for chatID. A chat the directory
// does not know yields a Failure for which IsNotFound is true.
func (c *Client) CheckUser(ctx context.Context, chatID int64) (string, error) {
	var out struct {
		Role string `json:"role"`
	}
	if err := c.do(ctx, "users.check", http.MethodGet, "/users/check/"+strconv.FormatInt(chatID, 10), nil, &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

// AddUser creates or replaces the directory entry for u.ChatID.
func (c *Client) AddUser(ctx context.Context, u User) error {
	return c.do(ctx, "users.add", http.MethodPost, "/users/add", u, nil)
}
