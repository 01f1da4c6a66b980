// Package apitest provides an in-memory fake of the remote directory and
// CRUD service for tests.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"storefront-bot/internal/api"
)

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	users     map[int64]api.User
	products  map[int64]api.Product
	orders    map[int64]api.Order
	nextID    int64
	down      bool
	lastQuery string
}

func NewServer() *Server {
	s := &Server{
		users:    make(map[int64]api.User),
		products: make(map[int64]api.Product),
		orders:   make(map[int64]api.Order),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// SetDown makes every endpoint answer 503 until called with false.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Server) PutUser(u api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ChatID] = u
}

func (s *Server) User(chatID int64) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	return u, ok
}

func (s *Server) PutProduct(p api.ProductInput) api.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProductLocked(p)
}

func (s *Server) Products() []api.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedProducts(s.products)
}

func (s *Server) Orders() []api.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LastProductQuery returns the raw query string of the latest product listing.
func (s *Server) LastProductQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.outage)

	r.Get("/users/check/{chatID}", s.checkUser)
	r.Post("/users/add", s.addUser)

	r.Get("/products", s.listProducts)
	r.Post("/products", s.createProduct)
	r.Get("/products/{id}", s.getProduct)
	r.Put("/products/{id}", s.updateProduct)
	r.Delete("/products/{id}", s.deleteProduct)

	r.Get("/orders", s.listOrders)
	r.Post("/orders", s.createOrder)
	r.Get("/orders/{id}", s.listUserOrders)
	r.Delete("/orders/{id}", s.deleteOrder)
	return r
}

func (s *Server) outage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		s.mu.Unlock()
		if down {
			writeError(w, http.StatusServiceUnavailable, "maintenance")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "chatID")
	if !ok {
		return
	}
	u, found := s.User(id)
	if !found {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": u.Role})
}

func (s *Server) addUser(w http.ResponseWriter, r *http.Request) {
	var u api.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.ChatID == 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid user")
		return
	}
	s.PutUser(u)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.lastQuery = r.URL.RawQuery
	out := sortedProducts(s.products)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in api.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid product")
		return
	}
	writeJSON(w, http.StatusCreated, s.PutProduct(in))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	p, found := s.products[id]
	s.mu.Unlock()
	if !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in api.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid product")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.products[id]; !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	p := api.Product{ID: id, Name: in.Name, Category: in.Category, Price: in.Price, Quantity: in.Quantity}
	s.products[id] = p
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.products[id]; !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	delete(s.products, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Orders())
}

func (s *Server) listUserOrders(w http.ResponseWriter, r *http.Request) {
	// the path segment is the ordering chat's id
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out := []api.Order{}
	for _, o := range s.Orders() {
		if o.UserID == chatID {
			out = append(out, o)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in api.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Quantity <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid order")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.products[in.ProductID]; !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	s.nextID++
	o := api.Order{ID: s.nextID, UserID: in.UserID, ProductID: in.ProductID, Quantity: in.Quantity}
	s.orders[o.ID] = o
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.orders[id]; !found {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	delete(s.orders, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createProductLocked(in api.ProductInput) api.Product {
	s.nextID++
	p := api.Product{ID: s.nextID, Name: in.Name, Category: in.Category, Price: in.Price, Quantity: in.Quantity}
	s.products[p.ID] = p
	return p
}

func sortedProducts(m map[int64]api.Product) []api.Product {
	out := make([]api.Product, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
