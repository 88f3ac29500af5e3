package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/service"
)

type PublishService interface {
	PublishToOne(ctx context.Context, contentID, platformID string, opts service.PublishOptions) service.PlatformResult
	PublishToMany(ctx context.Context, contentID string, platformIDs []string, opts service.PublishOptions) service.BatchResult
	PublishToAllEnabled(ctx context.Context, contentID string, opts service.PublishOptions) service.BatchResult
	DryRun(ctx context.Context, contentID string, platformIDs []string) service.BatchResult
	GetStatus(ctx context.Context, contentID string) (*service.ContentStatusView, error)
	ListAttempts(ctx context.Context, contentID, platformID string) ([]domain.PublicationAttempt, error)
}

type RetryService interface {
	RetryFailedPublication(ctx context.Context, contentID, platformID string) (service.PlatformResult, error)
	ResetAndRetry(ctx context.Context, contentID, platformID string) (service.PlatformResult, error)
	RetryAllFailed(ctx context.Context, contentID string) (service.BatchResult, error)
}

type ApprovalService interface {
	Submit(ctx context.Context, contentID string, platformIDs []string) (*domain.ApprovalEntry, error)
	Approve(ctx context.Context, contentID string) (*service.BatchResult, error)
	Reject(ctx context.Context, contentID, reason string) (*domain.ApprovalEntry, error)
	Get(ctx context.Context, contentID string) (*domain.ApprovalEntry, error)
}

type GeneratedContentService interface {
	HandleGenerated(ctx context.Context, contentID string) (*service.AutoPublishOutcome, error)
}

type PublishHandler struct {
	publisher PublishService
	retries   RetryService
	approvals ApprovalService
	generated GeneratedContentService
}

func NewPublishHandler(
	publisher PublishService,
	retries RetryService,
	approvals ApprovalService,
	generated GeneratedContentService,
) (*PublishHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publish service is required")
	}
	if retries == nil {
		return nil, fmt.Errorf("retry service is required")
	}
	if approvals == nil {
		return nil, fmt.Errorf("approval service is required")
	}
	if generated == nil {
		return nil, fmt.Errorf("generated content service is required")
	}

	return &PublishHandler{
		publisher: publisher,
		retries:   retries,
		approvals: approvals,
		generated: generated,
	}, nil
}

func RegisterPublishRoutes(
	router fiber.Router,
	publisher PublishService,
	retries RetryService,
	approvals ApprovalService,
	generated GeneratedContentService,
) error {
	h, err := NewPublishHandler(publisher, retries, approvals, generated)
	if err != nil {
		return err
	}

	contents := router.Group("/v1/contents/:contentId")
	contents.Post("/publish", h.PublishBatch)
	contents.Post("/publish-all", h.PublishAll)
	contents.Post("/publish/:platformId", h.PublishSingle)
	contents.Post("/dry-run", h.DryRun)
	contents.Get("/status", h.GetStatus)
	contents.Post("/retry", h.RetryAll)
	contents.Get("/publications/:platformId/attempts", h.ListAttempts)
	contents.Post("/publications/:platformId/retry", h.RetryOne)
	contents.Post("/generated", h.ContentGenerated)
	contents.Get("/approval", h.GetApproval)
	contents.Post("/approval", h.SubmitForApproval)
	contents.Post("/approval/approve", h.Approve)
	contents.Post("/approval/reject", h.Reject)

	return nil
}

type publishRequest struct {
	PlatformIDs []string `json:"platformIds"`
	Republish   bool     `json:"republish"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type publicationResponse struct {
	ID               string         `json:"id"`
	ContentID        string         `json:"contentId"`
	PlatformID       string         `json:"platformId"`
	Status           string         `json:"status"`
	ExternalPostID   *string        `json:"externalPostId,omitempty"`
	ExternalURL      *string        `json:"externalUrl,omitempty"`
	ErrorMessage     *string        `json:"errorMessage,omitempty"`
	RetryCount       int            `json:"retryCount"`
	LastAttemptAt    *time.Time     `json:"lastAttemptAt,omitempty"`
	PublishedAt      *time.Time     `json:"publishedAt,omitempty"`
	ScheduledRetryAt *time.Time     `json:"scheduledRetryAt,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

type contentStatusResponse struct {
	ContentID    string                `json:"contentId"`
	Status       string                `json:"status"`
	Counts       domain.StatusCounts   `json:"counts"`
	Publications []publicationResponse `json:"publications"`
}

type attemptResponse struct {
	ID             string    `json:"id"`
	AttemptNumber  int       `json:"attemptNumber"`
	Status         string    `json:"status"`
	Error          *string   `json:"error,omitempty"`
	Category       *string   `json:"category,omitempty"`
	ExternalPostID *string   `json:"externalPostId,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

type approvalResponse struct {
	ID              string     `json:"id"`
	ContentID       string     `json:"contentId"`
	PlatformIDs     []string   `json:"platformIds"`
	Status          string     `json:"status"`
	AddedAt         time.Time  `json:"addedAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	RejectionReason *string    `json:"rejectionReason,omitempty"`
	DecidedAt       *time.Time `json:"decidedAt,omitempty"`
}

type generatedResponse struct {
	ContentID   string               `json:"contentId"`
	Decision    string               `json:"decision"`
	PlatformIDs []string             `json:"platformIds,omitempty"`
	JobID       string               `json:"jobId,omitempty"`
	Approval    *approvalResponse    `json:"approval,omitempty"`
	Result      *service.BatchResult `json:"result,omitempty"`
}

func (h *PublishHandler) PublishSingle(c *fiber.Ctx) error {
	var req publishRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	result := h.publisher.PublishToOne(requestContext(c), contentID(c), strings.TrimSpace(c.Params("platformId")),
		service.PublishOptions{Republish: req.Republish})
	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

func (h *PublishHandler) PublishBatch(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.PlatformIDs) == 0 {
		return toHTTPError(fmt.Errorf("%w: platformIds is required", domain.ErrValidation))
	}

	result := h.publisher.PublishToMany(requestContext(c), contentID(c), req.PlatformIDs,
		service.PublishOptions{Republish: req.Republish})
	return writeBatch(c, result)
}

func (h *PublishHandler) PublishAll(c *fiber.Ctx) error {
	var req publishRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	result := h.publisher.PublishToAllEnabled(requestContext(c), contentID(c),
		service.PublishOptions{Republish: req.Republish})
	return writeBatch(c, result)
}

func (h *PublishHandler) DryRun(c *fiber.Ctx) error {
	var req publishRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	result := h.publisher.DryRun(requestContext(c), contentID(c), req.PlatformIDs)
	return writeBatch(c, result)
}

func (h *PublishHandler) GetStatus(c *fiber.Ctx) error {
	view, err := h.publisher.GetStatus(requestContext(c), contentID(c))
	if err != nil {
		return toHTTPError(err)
	}

	publications := make([]publicationResponse, 0, len(view.Publications))
	for i := range view.Publications {
		publications = append(publications, toPublicationResponse(&view.Publications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(contentStatusResponse{
		ContentID:    view.ContentID,
		Status:       view.Status.String(),
		Counts:       view.Counts,
		Publications: publications,
	})
}

func (h *PublishHandler) ListAttempts(c *fiber.Ctx) error {
	attempts, err := h.publisher.ListAttempts(requestContext(c), contentID(c), strings.TrimSpace(c.Params("platformId")))
	if err != nil {
		return toHTTPError(err)
	}

	resp := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, attemptResponse{
			ID:             a.ID,
			AttemptNumber:  a.AttemptNumber,
			Status:         a.Status.String(),
			Error:          a.Error,
			Category:       a.Category,
			ExternalPostID: a.ExternalPostID,
			DurationMs:     a.DurationMs,
			CreatedAt:      a.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": resp})
}

func (h *PublishHandler) RetryOne(c *fiber.Ctx) error {
	ctx := requestContext(c)
	platformID := strings.TrimSpace(c.Params("platformId"))

	var (
		result service.PlatformResult
		err    error
	)
	if c.QueryBool("reset", false) {
		result, err = h.retries.ResetAndRetry(ctx, contentID(c), platformID)
	} else {
		result, err = h.retries.RetryFailedPublication(ctx, contentID(c), platformID)
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

func (h *PublishHandler) RetryAll(c *fiber.Ctx) error {
	result, err := h.retries.RetryAllFailed(requestContext(c), contentID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return writeBatch(c, result)
}

func (h *PublishHandler) ContentGenerated(c *fiber.Ctx) error {
	outcome, err := h.generated.HandleGenerated(requestContext(c), contentID(c))
	if err != nil {
		return toHTTPError(err)
	}

	resp := generatedResponse{
		ContentID:   outcome.ContentID,
		Decision:    outcome.Decision.String(),
		PlatformIDs: outcome.PlatformIDs,
		JobID:       outcome.JobID,
		Result:      outcome.Result,
	}
	if outcome.Approval != nil {
		approval := toApprovalResponse(outcome.Approval)
		resp.Approval = &approval
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *PublishHandler) SubmitForApproval(c *fiber.Ctx) error {
	var req publishRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	entry, err := h.approvals.Submit(requestContext(c), contentID(c), req.PlatformIDs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toApprovalResponse(entry))
}

func (h *PublishHandler) Approve(c *fiber.Ctx) error {
	result, err := h.approvals.Approve(requestContext(c), contentID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return writeBatch(c, *result)
}

func (h *PublishHandler) Reject(c *fiber.Ctx) error {
	var req rejectRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}

	entry, err := h.approvals.Reject(requestContext(c), contentID(c), req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toApprovalResponse(entry))
}

func (h *PublishHandler) GetApproval(c *fiber.Ctx) error {
	entry, err := h.approvals.Get(requestContext(c), contentID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toApprovalResponse(entry))
}

// writeBatch answers 200 once the batch ran, even when some platforms failed.
// Batches that never started carry their error kind as the status.
func writeBatch(c *fiber.Ctx, result service.BatchResult) error {
	return c.Status(statusForKind(result.ErrorKind)).JSON(result)
}

func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func contentID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("contentId"))
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toPublicationResponse(p *domain.Publication) publicationResponse {
	return publicationResponse{
		ID:               p.ID,
		ContentID:        p.ContentID,
		PlatformID:       p.PlatformID,
		Status:           p.Status.String(),
		ExternalPostID:   p.ExternalPostID,
		ExternalURL:      p.ExternalURL,
		ErrorMessage:     p.ErrorMessage,
		RetryCount:       p.RetryCount,
		LastAttemptAt:    p.LastAttemptAt,
		PublishedAt:      p.PublishedAt,
		ScheduledRetryAt: p.ScheduledRetryAt,
		Metadata:         p.Metadata,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toApprovalResponse(e *domain.ApprovalEntry) approvalResponse {
	if e == nil {
		return approvalResponse{}
	}

	return approvalResponse{
		ID:              e.ID,
		ContentID:       e.ContentID,
		PlatformIDs:     e.PlatformIDs,
		Status:          e.Status.String(),
		AddedAt:         e.AddedAt,
		ExpiresAt:       e.ExpiresAt,
		RejectionReason: e.RejectionReason,
		DecidedAt:       e.DecidedAt,
	}
}

// statusForKind maps a result's error kind to the HTTP status of the response.
// Platform failures are reported in the body with 200.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNone, domain.KindPlatformError:
		return fiber.StatusOK
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindAlreadyInFlight, domain.KindConflict, domain.KindRetryExhausted:
		return fiber.StatusConflict
	case domain.KindValidationFailed, domain.KindNotConnected, domain.KindUnsupportedPlatform, domain.KindNoPlatforms:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyInFlight),
		errors.Is(err, domain.ErrRetryExhausted),
		errors.Is(err, domain.ErrApprovalPending),
		errors.Is(err, domain.ErrApprovalExpired):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrNoPlatforms),
		errors.Is(err, domain.ErrUnsupportedPlatform):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
