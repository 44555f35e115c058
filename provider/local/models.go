package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is a credential row owned by the provider. The profile row in the
// users table shares its id but never its password hash.
type Account struct {
	bun.BaseModel `bun:"table:auth_accounts,alias:acc"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string         `bun:"password_hash,notnull" json:"-"`
	Name          string         `bun:"name" json:"name,omitempty"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

const (
	// ResetRequestedStatus marks a reset token that has not been redeemed
	ResetRequestedStatus = "requested"
	// ResetCompletedStatus marks a redeemed reset token
	ResetCompletedStatus = "reseted"
)

// PasswordReset is a single-use reset token. The row id doubles as the token
// mailed to the account holder; it expires 24 hours after creation.
type PasswordReset struct {
	bun.BaseModel `bun:"table:auth_password_resets,alias:apr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
}
