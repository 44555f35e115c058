package proposta

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// UserRole is the profile role
type UserRole = string

const (
	// RoleUser is a regular account (view, edit own records)
	RoleUser UserRole = "user"
	// RoleAdmin can additionally approve accounts and manage users
	RoleAdmin UserRole = "admin"
)

// Profile is a row in the users table. The id matches the auth account id
// owned by the identity provider; there is exactly one profile per account.
type Profile struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Role          UserRole   `bun:"role,notnull" json:"role,omitempty"`
	IsApproved    bool       `bun:"is_approved,notnull" json:"is_approved"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsAdmin reports whether the profile grants admin access. Approval gates
// the role: an unapproved admin row never grants anything.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin && p.IsApproved
}

// Client is an agency customer a proposal is addressed to
type Client struct {
	bun.BaseModel `bun:"table:clients,alias:cli"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizePhone rewrites the phone number in E.164 using the given default
// region. Unparseable input is left as typed.
func (c *Client) NormalizePhone(region string) {
	if c == nil || strings.TrimSpace(c.Phone) == "" {
		return
	}
	num, err := phonenumbers.Parse(c.Phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return
	}
	c.Phone = phonenumbers.Format(num, phonenumbers.E164)
}

// Service is a catalog entry offered in proposals
type Service struct {
	bun.BaseModel `bun:"table:services,alias:svc"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Description   string     `bun:"description" json:"description,omitempty"`
	Price         float64    `bun:"price,notnull" json:"price"`
	Category      string     `bun:"category" json:"category,omitempty"`
	Features      []string   `bun:"features,type:jsonb" json:"features,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ProposalStatus tracks a proposal through its lifecycle
type ProposalStatus = string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalSent     ProposalStatus = "sent"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a commercial proposal built from catalog services. Totals are
// captured at creation time so later catalog price changes do not rewrite
// already-issued documents.
type Proposal struct {
	bun.BaseModel   `bun:"table:proposals,alias:prp"`
	ID              uuid.UUID      `bun:"id,pk,type:uuid" json:"id,omitempty"`
	ClientID        uuid.UUID      `bun:"client_id,notnull,type:uuid" json:"client_id,omitempty"`
	Client          *Client        `bun:"rel:belongs-to,join:client_id=id" json:"client,omitempty"`
	CreatedBy       uuid.UUID      `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	ServiceIDs      []uuid.UUID    `bun:"service_ids,type:jsonb" json:"service_ids,omitempty"`
	Status          ProposalStatus `bun:"status,notnull" json:"status,omitempty"`
	DiscountPercent float64        `bun:"discount_percent" json:"discount_percent"`
	TaxPercent      float64        `bun:"tax_percent" json:"tax_percent"`
	ValidityDays    int            `bun:"validity_days" json:"validity_days,omitempty"`
	Subtotal        float64        `bun:"subtotal" json:"subtotal"`
	Total           float64        `bun:"total" json:"total"`
	CreatedAt       *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ExpiresAt returns the proposal expiry, or zero when no validity was set
func (p *Proposal) ExpiresAt() time.Time {
	if p == nil || p.CreatedAt == nil || p.ValidityDays <= 0 {
		return time.Time{}
	}
	return p.CreatedAt.Add(time.Duration(p.ValidityDays) * 24 * time.Hour)
}

// IsValidStatus checks a proposal status value
func IsValidStatus(s ProposalStatus) bool {
	switch s {
	case ProposalDraft, ProposalSent, ProposalApproved, ProposalRejected:
		return true
	default:
		return false
	}
}
