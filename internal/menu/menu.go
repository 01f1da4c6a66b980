package menu

import "storefront-bot/internal/role"

// Action ids.
const (
	ListProducts  = "list_products"
	PlaceOrder    = "place_order"
	MyOrders      = "my_orders"
	AddProduct    = "add_product"
	UpdateProduct = "update_product"
	DeleteProduct = "delete_product"
	AllOrders     = "all_orders"
	DeleteOrder   = "delete_order"
	Stats         = "stats"

	Start = "start"
	Help  = "help"
	Info  = "info"
)

// Action is a role-gated menu entry. Common actions are visible to every
// role and are always listed last.
type Action struct {
	ID            string
	Label         string
	RequiredRoles []role.Role
	Common        bool
}

// Allows reports whether r may invoke the action.
func (a Action) Allows(r role.Role) bool {
	if a.Common {
		return true
	}
	for _, x := range a.RequiredRoles {
		if x == r {
			return true
		}
	}
	return false
}

var catalog = []Action{
	{ID: ListProducts, Label: "📦 Products", RequiredRoles: []role.Role{role.User, role.Admin, role.Moderator}},
	{ID: PlaceOrder, Label: "🛒 Place order", RequiredRoles: []role.Role{role.User}},
	{ID: MyOrders, Label: "📋 My orders", RequiredRoles: []role.Role{role.User}},
	{ID: AddProduct, Label: "➕ Add product", RequiredRoles: []role.Role{role.Admin, role.Moderator}},
	{ID: UpdateProduct, Label: "✏️ Update product", RequiredRoles: []role.Role{role.Admin, role.Moderator}},
	{ID: DeleteProduct, Label: "🗑 Delete product", RequiredRoles: []role.Role{role.Admin}},
	{ID: AllOrders, Label: "📑 All orders", RequiredRoles: []role.Role{role.Admin, role.Moderator}},
	{ID: DeleteOrder, Label: "❌ Delete order", RequiredRoles: []role.Role{role.Admin}},
	{ID: Stats, Label: "📊 Stats", RequiredRoles: []role.Role{role.Admin}},
}

var common = []Action{
	{ID: Start, Label: "🏠 Start", Common: true},
	{ID: Help, Label: "❓ Help", Common: true},
	{ID: Info, Label: "ℹ️ Info", Common: true},
}

// Menu is the result of Build. When RegisterFirst is set the chat has no
// role yet and Actions is empty.
type Menu struct {
	Actions       []Action
	RegisterFirst bool
}

// Build filters the catalog for r, preserving catalog order, and appends
// the common actions.
func Build(r role.Role) Menu {
	if r == role.Unassigned {
		return Menu{RegisterFirst: true}
	}
	out := make([]Action, 0, len(catalog)+len(common))
	for _, a := range catalog {
		if a.Allows(r) {
			out = append(out, a)
		}
	}
	out = append(out, common...)
	return Menu{Actions: out}
}

// ByLabel finds an action, gated or common, by its button label.
func ByLabel(label string) (Action, bool) {
	return find(func(a Action) bool { return a.Label == label })
}

// ByID finds an action, gated or common, by id.
func ByID(id string) (Action, bool) {
	return find(func(a Action) bool { return a.ID == id })
}

// Catalog returns a copy of the gated actions in order.
func Catalog() []Action {
	return append([]Action(nil), catalog...)
}

func find(match func(Action) bool) (Action, bool) {
	for _, a := range catalog {
		if match(a) {
			return a, true
		}
	}
	for _, a := range common {
		if match(a) {
			return a, true
		}
	}
	return Action{}, false
}
