package proposta

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Proposals interface {
	repository.Repository[*Proposal]

	Create(ctx context.Context, record *Proposal, criteria ...repository.InsertCriteria) (*Proposal, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Proposal, criteria ...repository.InsertCriteria) (*Proposal, error)
	ListNewestFirst(ctx context.Context) ([]*Proposal, error)
	ListRecent(ctx context.Context, limit int) ([]*Proposal, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Proposal, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ProposalStatus) (*Proposal, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type proposals struct {
	repository.Repository[*Proposal]
	db *bun.DB
}

var (
	_ Proposals                         = (*proposals)(nil)
	_ repository.Repository[*Proposal] = (*proposals)(nil)
)

func NewProposalsRepository(db *bun.DB) Proposals {
	repo := repository.NewRepository[*Proposal](db, repository.ModelHandlers[*Proposal]{
		NewRecord: func() *Proposal { return &Proposal{} },
		GetID: func(p *Proposal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Proposal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &proposals{
		Repository: repo,
		db:         db,
	}
}

func (r *proposals) Create(ctx context.Context, record *Proposal, criteria ...repository.InsertCriteria) (*Proposal, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *proposals) CreateTx(ctx context.Context, tx bun.IDB, record *Proposal, criteria ...repository.InsertCriteria) (*Proposal, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = ProposalDraft
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

// ListNewestFirst loads all proposals with their client rows. The order
// column is qualified, the joined clients table carries created_at too.
func (r *proposals) ListNewestFirst(ctx context.Context) ([]*Proposal, error) {
	var records []*Proposal
	err := r.db.NewSelect().
		Model(&records).
		Relation("Client").
		OrderExpr("?TableAlias.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *proposals) ListRecent(ctx context.Context, limit int) ([]*Proposal, error) {
	if limit <= 0 {
		limit = 5
	}

	var records []*Proposal
	err := r.db.NewSelect().
		Model(&records).
		Relation("Client").
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *proposals) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Proposal, error) {
	var records []*Proposal
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.client_id = ?", clientID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *proposals) UpdateStatus(ctx context.Context, id uuid.UUID, status ProposalStatus) (*Proposal, error) {
	if !IsValidStatus(status) {
		return nil, goerrors.New("unknown proposal status", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"status": status})
	}

	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*Proposal)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return r.Repository.GetByID(ctx, id.String())
}

func (r *proposals) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Proposal)(nil)).
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
