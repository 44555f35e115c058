package proposta

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is the region used to normalize client phone numbers
// when no country prefix was typed.
var DefaultPhoneRegion = "BR"

type Clients interface {
	repository.Repository[*Client]

	Create(ctx context.Context, record *Client, criteria ...repository.InsertCriteria) (*Client, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Client, criteria ...repository.InsertCriteria) (*Client, error)
	ListByName(ctx context.Context) ([]*Client, error)
	Search(ctx context.Context, query string) ([]*Client, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type clients struct {
	repository.Repository[*Client]
	db *bun.DB
}

var (
	_ Clients                        = (*clients)(nil)
	_ repository.Repository[*Client] = (*clients)(nil)
)

func NewClientsRepository(db *bun.DB) Clients {
	repo := repository.NewRepository[*Client](db, repository.ModelHandlers[*Client]{
		NewRecord: func() *Client { return &Client{} },
		GetID: func(c *Client) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Client, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &clients{
		Repository: repo,
		db:         db,
	}
}

func (r *clients) Create(ctx context.Context, record *Client, criteria ...repository.InsertCriteria) (*Client, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *clients) CreateTx(ctx context.Context, tx bun.IDB, record *Client, criteria ...repository.InsertCriteria) (*Client, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.NormalizePhone(DefaultPhoneRegion)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *clients) ListByName(ctx context.Context) ([]*Client, error) {
	var records []*Client
	err := r.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Search matches name or email, case insensitive
func (r *clients) Search(ctx context.Context, query string) ([]*Client, error) {
	q := strings.TrimSpace(strings.ToLower(query))
	if q == "" {
		return r.ListByName(ctx)
	}

	like := "%" + q + "%"
	var records []*Client
	err := r.db.NewSelect().
		Model(&records).
		Where("LOWER(?TableAlias.name) LIKE ?", like).
		WhereOr("LOWER(?TableAlias.email) LIKE ?", like).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *clients) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Client)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}
