package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"storefront-bot/internal/api"
	"storefront-bot/internal/apperr"
)

// splitFields splits comma separated input into exactly n non-empty fields.
func splitFields(text string, n int) ([]string, error) {
	parts := strings.Split(text, ",")
	if len(parts) != n {
		return nil, apperr.Validation(fmt.Sprintf("❌ Expected %d comma separated values, got %d. Try again or /cancel.", n, len(parts)))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, apperr.Validation(fmt.Sprintf("❌ Value %d is empty. Try again or /cancel.", i+1))
		}
	}
	return parts, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("❌ An id must be a positive whole number. Try again or /cancel.")
	}
	return id, nil
}

func parseQuantity(s string) (int, error) {
	q, err := strconv.Atoi(s)
	if err != nil || q < 0 {
		return 0, apperr.Validation("❌ Quantity must be a whole number of zero or more. Try again or /cancel.")
	}
	return q, nil
}

func parsePrice(s string) (float64, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0, apperr.Validation("❌ Price must be a number of zero or more. Try again or /cancel.")
	}
	return p, nil
}

// parseProductFields reads name,category,price,quantity.
func parseProductFields(f []string) (api.ProductInput, error) {
	price, err := parsePrice(f[2])
	if err != nil {
		return api.ProductInput{}, err
	}
	qty, err := parseQuantity(f[3])
	if err != nil {
		return api.ProductInput{}, err
	}
	return api.ProductInput{Name: f[0], Category: f[1], Price: price, Quantity: qty}, nil
}

func parseProductCreate(text string) (api.ProductInput, error) {
	f, err := splitFields(text, 4)
	if err != nil {
		return api.ProductInput{}, err
	}
	return parseProductFields(f)
}

func parseProductUpdate(text string) (int64, api.ProductInput, error) {
	f, err := splitFields(text, 5)
	if err != nil {
		return 0, api.ProductInput{}, err
	}
	id, err := parseID(f[0])
	if err != nil {
		return 0, api.ProductInput{}, err
	}
	in, err := parseProductFields(f[1:])
	return id, in, err
}

// parseOrderCreate reads product_id,quantity. An order needs at least one item.
func parseOrderCreate(text string) (int64, int, error) {
	f, err := splitFields(text, 2)
	if err != nil {
		return 0, 0, err
	}
	pid, err := parseID(f[0])
	if err != nil {
		return 0, 0, err
	}
	qty, err := parseQuantity(f[1])
	if err != nil {
		return 0, 0, err
	}
	if qty == 0 {
		return 0, 0, apperr.Validation("❌ Order at least one item. Try again or /cancel.")
	}
	return pid, qty, nil
}
