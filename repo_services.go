package proposta

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Services interface {
	repository.Repository[*Service]

	Create(ctx context.Context, record *Service, criteria ...repository.InsertCriteria) (*Service, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Service, criteria ...repository.InsertCriteria) (*Service, error)
	ListByName(ctx context.Context) ([]*Service, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Service, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type services struct {
	repository.Repository[*Service]
	db *bun.DB
}

var (
	_ Services                         = (*services)(nil)
	_ repository.Repository[*Service] = (*services)(nil)
)

func NewServicesRepository(db *bun.DB) Services {
	repo := repository.NewRepository[*Service](db, repository.ModelHandlers[*Service]{
		NewRecord: func() *Service { return &Service{} },
		GetID: func(s *Service) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Service, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
	})

	return &services{
		Repository: repo,
		db:         db,
	}
}

func (r *services) Create(ctx context.Context, record *Service, criteria ...repository.InsertCriteria) (*Service, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *services) CreateTx(ctx context.Context, tx bun.IDB, record *Service, criteria ...repository.InsertCriteria) (*Service, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *services) ListByName(ctx context.Context) ([]*Service, error) {
	var records []*Service
	err := r.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetByIDs fetches the catalog entries a proposal references. Missing ids
// are skipped, the caller decides whether a partial selection is an error.
func (r *services) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var records []*Service
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *services) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Service)(nil)).
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
