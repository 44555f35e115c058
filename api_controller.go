package proposta

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// APIController serves the JSON surface behind the approval gate: clients,
// service catalog, proposals, dashboard metrics, and the admin roster.
type APIController struct {
	Logger       Logger
	Repo         RepositoryManager
	Orchestrator *Orchestrator
	Activity     ActivitySink
	SessionKey   string
	PhoneRegion  string
}

type APIControllerOption func(*APIController) *APIController

func WithAPILogger(l Logger) APIControllerOption {
	return func(c *APIController) *APIController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithAPIActivitySink(sink ActivitySink) APIControllerOption {
	return func(c *APIController) *APIController {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

// WithAPIPhoneRegion sets the default region for phone normalization
func WithAPIPhoneRegion(region string) APIControllerOption {
	return func(c *APIController) *APIController {
		if region != "" {
			c.PhoneRegion = region
		}
		return c
	}
}

func NewAPIController(repo RepositoryManager, orchestrator *Orchestrator, opts ...APIControllerOption) *APIController {
	c := &APIController{
		Logger:       defLogger{},
		Repo:         repo,
		Orchestrator: orchestrator,
		Activity:     noopActivitySink{},
		SessionKey:   "session",
		PhoneRegion:  DefaultPhoneRegion,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in api controller...")
	}

	if c.Orchestrator == nil {
		panic("Missing Orchestrator in api controller...")
	}

	return c
}

// RegisterAPIRoutes mounts the JSON routes. protected guards every route,
// adminOnly additionally wraps the admin roster operations.
func RegisterAPIRoutes[T any](app router.Router[T], controller *APIController, protected, adminOnly router.MiddlewareFunc) {
	api := app.Group("/api")
	api.Use(protected)

	api.Get("/me", controller.Me).SetName("api.me.get")
	api.Get("/dashboard", controller.Dashboard).SetName("api.dashboard.get")

	api.Get("/clients", controller.ClientList).SetName("api.clients.list")
	api.Post("/clients", controller.ClientCreate).SetName("api.clients.create")
	api.Delete("/clients/:id", controller.ClientDelete).SetName("api.clients.delete")

	api.Get("/services", controller.ServiceList).SetName("api.services.list")
	api.Post("/services", controller.ServiceCreate).SetName("api.services.create")
	api.Delete("/services/:id", controller.ServiceDelete).SetName("api.services.delete")

	api.Get("/proposals", controller.ProposalList).SetName("api.proposals.list")
	api.Post("/proposals", controller.ProposalCreate).SetName("api.proposals.create")
	api.Post("/proposals/preview", controller.ProposalPreview).SetName("api.proposals.preview")
	api.Put("/proposals/:id/status", controller.ProposalStatusUpdate).SetName("api.proposals.status")
	api.Delete("/proposals/:id", controller.ProposalDelete).SetName("api.proposals.delete")

	admin := api.Group("/admin")
	admin.Use(adminOnly)
	admin.Get("/users", controller.UserList).SetName("api.admin.users.list")
	admin.Post("/users/:id/approve", controller.UserApprove).SetName("api.admin.users.approve")
	admin.Delete("/users/:id", controller.UserDelete).SetName("api.admin.users.delete")
}

// Me reports the session identity plus a fresh role check
func (c *APIController) Me(ctx router.Context) error {
	session, err := GetRouterSession(ctx, c.SessionKey)
	if err != nil {
		return c.unauthorized(ctx, err)
	}

	check := c.Orchestrator.CheckRole(ctx.Context(), session.UserID)

	return ctx.JSON(router.StatusOK, router.ViewContext{
		"id":          session.GetUserID(),
		"email":       session.Email,
		"is_admin":    check.IsAdmin,
		"is_approved": check.IsApproved,
	})
}

func (c *APIController) Dashboard(ctx router.Context) error {
	metrics, err := BuildDashboard(ctx.Context(), c.Repo)
	if err != nil {
		return c.serverError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, metrics)
}

// ClientCreatePayload is the client intake form
type ClientCreatePayload struct {
	Name  string `form:"name" json:"name"`
	Email string `form:"email" json:"email"`
	Phone string `form:"phone_number" json:"phone_number"`
}

func (r ClientCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Phone, validation.Length(0, 30)),
	)
}

func (c *APIController) ClientList(ctx router.Context) error {
	if q := ctx.Query("q", ""); q != "" {
		records, err := c.Repo.Clients().Search(ctx.Context(), q)
		if err != nil {
			return c.serverError(ctx, err)
		}
		return ctx.JSON(router.StatusOK, records)
	}

	records, err := c.Repo.Clients().ListByName(ctx.Context())
	if err != nil {
		return c.serverError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, records)
}

func (c *APIController) ClientCreate(ctx router.Context) error {
	payload := new(ClientCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	record, err := c.Repo.Clients().Create(ctx.Context(), &Client{
		Name:  payload.Name,
		Email: payload.Email,
		Phone: payload.Phone,
	})
	if err != nil {
		return c.serverError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, record)
}

func (c *APIController) ClientDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	if err := c.Repo.Clients().DeleteByID(ctx.Context(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return c.notFound(ctx, err)
		}
		return c.serverError(ctx, err)
	}

	return ctx.Status(http.StatusNoContent).SendString("")
}

// ServiceCreatePayload is the catalog entry form
type ServiceCreatePayload struct {
	Name        string   `form:"name" json:"name"`
	Description string   `form:"description" json:"description"`
	Price       float64  `form:"price" json:"price"`
	Category    string   `form:"category" json:"category"`
	Features    []string `form:"features" json:"features"`
}

func (r ServiceCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Price, validation.Required, validation.Min(0.0)),
		validation.Field(&r.Category, validation.Length(0, 100)),
	)
}

func (c *APIController) ServiceList(ctx router.Context) error {
	records, err := c.Repo.Services().ListByName(ctx.Context())
	if err != nil {
		return c.serverError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, records)
}

func (c *APIController) ServiceCreate(ctx router.Context) error {
	payload := new(ServiceCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	record, err := c.Repo.Services().Create(ctx.Context(), &Service{
		Name:        payload.Name,
		Description: payload.Description,
		Price:       payload.Price,
		Category:    payload.Category,
		Features:    payload.Features,
	})
	if err != nil {
		return c.serverError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, record)
}

func (c *APIController) ServiceDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	if err := c.Repo.Services().DeleteByID(ctx.Context(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return c.notFound(ctx, err)
		}
		return c.serverError(ctx, err)
	}

	return ctx.Status(http.StatusNoContent).SendString("")
}

// ProposalCreatePayload is the wizard submission
type ProposalCreatePayload struct {
	ClientID        string   `form:"client_id" json:"client_id"`
	ServiceIDs      []string `form:"service_ids" json:"service_ids"`
	DiscountPercent float64  `form:"discount_percent" json:"discount_percent"`
	TaxPercent      float64  `form:"tax_percent" json:"tax_percent"`
	ValidityDays    int      `form:"validity_days" json:"validity_days"`
}

func (r ProposalCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClientID, validation.Required, is.UUID),
		validation.Field(&r.ServiceIDs, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.DiscountPercent, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&r.TaxPercent, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&r.ValidityDays, validation.Min(0)),
	)
}

func (r ProposalCreatePayload) serviceUUIDs() ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(r.ServiceIDs))
	for _, raw := range r.ServiceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, goerrors.New("invalid service id", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"service_id": raw})
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *APIController) ProposalList(ctx router.Context) error {
	if raw := ctx.Query("client_id", ""); raw != "" {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			return c.badRequest(ctx, err)
		}
		records, err := c.Repo.Proposals().ListByClient(ctx.Context(), clientID)
		if err != nil {
			return c.serverError(ctx, err)
		}
		return ctx.JSON(router.StatusOK, records)
	}

	records, err := c.Repo.Proposals().ListNewestFirst(ctx.Context())
	if err != nil {
		return c.serverError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, records)
}

// ProposalPreview computes totals for the wizard without persisting anything
func (c *APIController) ProposalPreview(ctx router.Context) error {
	payload := new(ProposalCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	ids, err := payload.serviceUUIDs()
	if err != nil {
		return c.badRequest(ctx, err)
	}

	services, err := c.Repo.Services().GetByIDs(ctx.Context(), ids)
	if err != nil {
		return c.serverError(ctx, err)
	}

	quote, err := BuildQuote(services, payload.DiscountPercent, payload.TaxPercent)
	if err != nil {
		return c.validationError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, quote)
}

func (c *APIController) ProposalCreate(ctx router.Context) error {
	session, err := GetRouterSession(ctx, c.SessionKey)
	if err != nil {
		return c.unauthorized(ctx, err)
	}

	payload := new(ProposalCreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	clientID, err := uuid.Parse(payload.ClientID)
	if err != nil {
		return c.badRequest(ctx, err)
	}

	ids, err := payload.serviceUUIDs()
	if err != nil {
		return c.badRequest(ctx, err)
	}

	services, err := c.Repo.Services().GetByIDs(ctx.Context(), ids)
	if err != nil {
		return c.serverError(ctx, err)
	}

	if len(services) != len(ids) {
		return c.badRequest(ctx, goerrors.New("one or more services do not exist", goerrors.CategoryBadInput))
	}

	quote, err := BuildQuote(services, payload.DiscountPercent, payload.TaxPercent)
	if err != nil {
		return c.validationError(ctx, err)
	}

	record, err := c.Repo.Proposals().Create(ctx.Context(), &Proposal{
		ClientID:        clientID,
		CreatedBy:       session.UserID,
		ServiceIDs:      ids,
		DiscountPercent: quote.DiscountPercent,
		TaxPercent:      quote.TaxPercent,
		ValidityDays:    payload.ValidityDays,
		Subtotal:        quote.Subtotal,
		Total:           quote.Total,
	})
	if err != nil {
		return c.serverError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, record)
}

// ProposalStatusPayload moves a proposal through its lifecycle
type ProposalStatusPayload struct {
	Status string `form:"status" json:"status"`
}

func (r ProposalStatusPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Status,
			validation.Required,
			validation.In(ProposalDraft, ProposalSent, ProposalApproved, ProposalRejected),
		),
	)
}

func (c *APIController) ProposalStatusUpdate(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	payload := new(ProposalStatusPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	record, err := c.Repo.Proposals().UpdateStatus(ctx.Context(), id, payload.Status)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return c.notFound(ctx, err)
		}
		return c.serverError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

func (c *APIController) ProposalDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	if err := c.Repo.Proposals().DeleteByID(ctx.Context(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return c.notFound(ctx, err)
		}
		return c.serverError(ctx, err)
	}

	return ctx.Status(http.StatusNoContent).SendString("")
}

// UserList returns every profile, newest first, for the admin roster
func (c *APIController) UserList(ctx router.Context) error {
	records, err := c.Repo.Profiles().ListNewestFirst(ctx.Context())
	if err != nil {
		return c.serverError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, records)
}

func (c *APIController) UserApprove(ctx router.Context) error {
	session, err := GetRouterSession(ctx, c.SessionKey)
	if err != nil {
		return c.unauthorized(ctx, err)
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	handler := NewApproveUserHandler(c.Repo).
		WithActivitySink(c.Activity).
		WithLogger(c.Logger)

	if err := handler.Execute(ctx.Context(), ApproveUserMessage{
		UserID:  id,
		ActorID: session.UserID,
	}); err != nil {
		return c.richError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, router.ViewContext{"approved": true})
}

func (c *APIController) UserDelete(ctx router.Context) error {
	session, err := GetRouterSession(ctx, c.SessionKey)
	if err != nil {
		return c.unauthorized(ctx, err)
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	handler := NewDeleteUserHandler(c.Repo).
		WithActivitySink(c.Activity).
		WithLogger(c.Logger)

	if err := handler.Execute(ctx.Context(), DeleteUserMessage{
		UserID:  id,
		ActorID: session.UserID,
	}); err != nil {
		return c.richError(ctx, err)
	}

	return ctx.Status(http.StatusNoContent).SendString("")
}

func (c *APIController) badRequest(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, router.ViewContext{"error": err.Error()})
}

func (c *APIController) validationError(ctx router.Context, err error) error {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return ctx.JSON(http.StatusUnprocessableEntity, router.ViewContext{
			"error":  "validation failed",
			"fields": FormatValidationErrorToMap(err),
		})
	}
	return ctx.JSON(http.StatusUnprocessableEntity, router.ViewContext{"error": err.Error()})
}

func (c *APIController) unauthorized(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusUnauthorized, router.ViewContext{"error": "authentication required"})
}

func (c *APIController) notFound(ctx router.Context, err error) error {
	return ctx.JSON(http.StatusNotFound, router.ViewContext{"error": "record not found"})
}

func (c *APIController) serverError(ctx router.Context, err error) error {
	c.Logger.Error("api error: %v", err)
	return ctx.JSON(router.StatusInternalServerError, router.ViewContext{"error": "internal server error"})
}

// richError maps command-handler errors onto HTTP status codes
func (c *APIController) richError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return c.serverError(ctx, err)
	}

	switch richErr.Category {
	case goerrors.CategoryNotFound:
		return c.notFound(ctx, err)
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ctx.JSON(router.StatusBadRequest, router.ViewContext{"error": richErr.Message})
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ctx.JSON(router.StatusForbidden, router.ViewContext{"error": richErr.Message})
	case goerrors.CategoryConflict:
		return ctx.JSON(http.StatusConflict, router.ViewContext{"error": richErr.Message})
	default:
		return c.serverError(ctx, err)
	}
}
