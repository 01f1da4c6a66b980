package role

import (
	"context"

	"github.com/rs/zerolog/log"

	"storefront-bot/internal/api"
)

// Directory is the remote user directory.
type Directory interface {
	CheckUser(ctx context.Context, chatID int64) (string, error)
	AddUser(ctx context.Context, u api.User) error
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve asks the directory for the chat's role. It never fails: an unknown
// chat, a transport error or an unparsable answer all resolve to Unassigned.
func (r *Resolver) Resolve(ctx context.Context, chatID int64) Role {
	raw, err := r.dir.CheckUser(ctx, chatID)
	if err != nil {
		if api.IsNotFound(err) {
			return Unassigned
		}
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("role lookup failed, treating chat as unassigned")
		return Unassigned
	}
	role := Parse(raw)
	if role == Unassigned && raw != "" {
		log.Warn().Str("role", raw).Int64("chat_id", chatID).Msg("directory returned unknown role")
	}
	return role
}

// Assign upserts the chat's role in the directory.
func (r *Resolver) Assign(ctx context.Context, chatID int64, username string, role Role) error {
	return r.dir.AddUser(ctx, api.User{Username: username, ChatID: chatID, Role: role.String()})
}
