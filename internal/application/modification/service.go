package modification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	"shoply-ai-cs-api/internal/infrastructure/messaging"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"
	"shoply-ai-cs-api/pkg/metrics"
)

var tracer = otel.Tracer("modification")

const (
	actorCustomer = "customer"
	actorSystem   = "system"
)

// BackendResolver 按租户解析商城后端
type BackendResolver interface {
	ForTenant(tenant *entity.Tenant) commerce.Backend
}

// AuditPublisher 审计日志发布端。为空时只落库不发流。
type AuditPublisher interface {
	PublishAuditLog(ctx context.Context, log *messaging.AuditLogMessage) (string, error)
}

// AddressPayload 地址变更参数
type AddressPayload struct {
	Address commerce.AddressUpdate `json:"address"`
}

// RefundPayload 退款参数
type RefundPayload struct {
	Reason string `json:"reason"`
}

// NotePayload 订单备注参数
type NotePayload struct {
	Text string `json:"text"`
}

// ProposeInput 修改提议输入
type ProposeInput struct {
	ConversationID string
	Utterance      string
	OrderNumber    string
	Payload        json.RawMessage
}

// ProposeResult 修改提议结果。NeedsClarification 为真时只带追问话术。
type ProposeResult struct {
	Request            *entity.ModificationRequest
	Intent             *Intent
	NeedsClarification bool
	ClarifyQuestion    string
}

// Service 订单修改服务。full 验证级别才可发起；
// 请求经确认令牌二次确认后才执行，每步写审计。
type Service struct {
	repo     repository.ModificationRepository
	resolver BackendResolver
	audit    AuditPublisher

	now func() time.Time
}

// NewService 创建修改服务
func NewService(repo repository.ModificationRepository, resolver BackendResolver, audit AuditPublisher) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		audit:    audit,
		now:      time.Now,
	}
}

// Propose 从用户话语发起修改提议。
// 意图置信度低于门槛时不建请求，返回追问；订单状态不允许该类修改时拒绝。
func (s *Service) Propose(ctx context.Context, tenant *entity.Tenant, session *entity.VerificationSession, in *ProposeInput) (*ProposeResult, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if in == nil || in.Utterance == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("utterance is required")
	}
	if session == nil || !session.Level.AtLeast(entity.VerificationFull) {
		return nil, apperrors.ErrVerificationRequired.WithDetail("order modifications require full identity verification")
	}

	ctx, span := tracer.Start(ctx, "modification.Propose",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	intent := DetectIntent(in.Utterance)
	if intent == nil {
		return nil, apperrors.ErrIntentUnclear.WithDetail("no modification intent detected")
	}
	metrics.IntentDetections.WithLabelValues(tenant.ID, string(intent.Type)).Inc()
	span.SetAttributes(
		attribute.String("intent.type", string(intent.Type)),
		attribute.Float64("intent.confidence", intent.Confidence),
	)

	if !intent.Actionable() {
		return &ProposeResult{
			Intent:             intent,
			NeedsClarification: true,
			ClarifyQuestion:    ClarifyQuestion(intent.Type),
		}, nil
	}

	orderNumber := in.OrderNumber
	if orderNumber == "" {
		orderNumber = session.OrderID
	}
	if orderNumber == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("order number is required")
	}

	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}
	order, err := backend.GetOrder(ctx, orderNumber)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := checkPermitted(intent.Type, order); err != nil {
		metrics.ModificationTotal.WithLabelValues(tenant.ID, string(intent.Type), "rejected").Inc()
		return nil, err
	}

	req := entity.NewModificationRequest(
		tenant.ID, in.ConversationID, session.Email, order.OrderNumber,
		intent.Type, uuid.NewString(), in.Payload,
	)
	req.ID = uuid.NewString()

	initial := &entity.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Actor:     actorCustomer,
		Action:    "proposed",
		Result:    fmt.Sprintf("intent %s at %.2f confidence", intent.Type, intent.Confidence),
	}
	if err := s.repo.Create(ctx, req, initial); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.ModificationTotal.WithLabelValues(tenant.ID, string(intent.Type), "proposed").Inc()
	s.publishAudit(ctx, tenant.ID, "modification.proposed", req)

	return &ProposeResult{Request: req, Intent: intent}, nil
}

// Confirm 凭确认令牌确认并执行修改。
// 先前移到 confirmed 再调用商城后端；执行结果落为 executed 或 failed。
func (s *Service) Confirm(ctx context.Context, tenant *entity.Tenant, token string) (*entity.ModificationRequest, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if token == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("confirmation token is required")
	}

	ctx, span := tracer.Start(ctx, "modification.Confirm",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	req, err := s.repo.GetByConfirmationToken(ctx, tenant.ID, token)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrModificationNotFound
	}

	if err := s.transition(ctx, tenant.ID, req, entity.StatusConfirmed, actorCustomer, "confirmed", "confirmation token accepted"); err != nil {
		return nil, err
	}

	execErr := s.execute(ctx, tenant, req)
	if execErr != nil {
		if err := s.transition(ctx, tenant.ID, req, entity.StatusFailed, actorSystem, "executed", execErr.Error()); err != nil {
			logger.Error(ctx, "failed to record execution failure", err, "modification_id", req.ID)
		}
		metrics.ModificationTotal.WithLabelValues(tenant.ID, string(req.Type), "failed").Inc()
		s.publishAudit(ctx, tenant.ID, "modification.failed", req)
		return nil, execErr
	}

	if err := s.transition(ctx, tenant.ID, req, entity.StatusExecuted, actorSystem, "executed", "commerce backend accepted"); err != nil {
		return nil, err
	}
	metrics.ModificationTotal.WithLabelValues(tenant.ID, string(req.Type), "executed").Inc()
	s.publishAudit(ctx, tenant.ID, "modification.executed", req)

	return req, nil
}

// Withdraw 客户撤回待确认的修改请求
func (s *Service) Withdraw(ctx context.Context, tenant *entity.Tenant, id string) (*entity.ModificationRequest, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	req, err := s.repo.GetByID(ctx, tenant.ID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrModificationNotFound
	}
	if err := s.transition(ctx, tenant.ID, req, entity.StatusCancelled, actorCustomer, "withdrawn", "customer withdrew the request"); err != nil {
		return nil, err
	}
	metrics.ModificationTotal.WithLabelValues(tenant.ID, string(req.Type), "withdrawn").Inc()
	s.publishAudit(ctx, tenant.ID, "modification.withdrawn", req)
	return req, nil
}

// Get 读取修改请求
func (s *Service) Get(ctx context.Context, tenant *entity.Tenant, id string) (*entity.ModificationRequest, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	req, err := s.repo.GetByID(ctx, tenant.ID, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apperrors.ErrModificationNotFound
	}
	return req, nil
}

// Audit 读取修改请求的完整审计轨迹
func (s *Service) Audit(ctx context.Context, tenant *entity.Tenant, id string) ([]*entity.AuditEntry, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	return s.repo.ListAudit(ctx, tenant.ID, id)
}

func (s *Service) transition(ctx context.Context, tenantID string, req *entity.ModificationRequest, next entity.ModificationStatus, actor, action, result string) error {
	audit := &entity.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Actor:     actor,
		Action:    action,
		Result:    result,
	}
	if err := s.repo.Transition(ctx, tenantID, req.ID, next, audit); err != nil {
		return err
	}
	req.Status = next
	req.UpdatedAt = s.now()
	return nil
}

// execute 调用商城后端执行已确认的修改
func (s *Service) execute(ctx context.Context, tenant *entity.Tenant, req *entity.ModificationRequest) error {
	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}

	switch req.Type {
	case entity.ModificationCancel:
		return backend.CancelOrder(ctx, req.OrderID)
	case entity.ModificationAddressUpdate:
		var payload AddressPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return apperrors.ErrInvalidParam.WithDetail("address payload is malformed")
		}
		return backend.UpdateAddress(ctx, req.OrderID, &payload.Address)
	case entity.ModificationRefund:
		var payload RefundPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &payload); err != nil {
				return apperrors.ErrInvalidParam.WithDetail("refund payload is malformed")
			}
		}
		return backend.RefundOrder(ctx, req.OrderID, payload.Reason)
	case entity.ModificationNote:
		var payload NotePayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil || payload.Text == "" {
			return apperrors.ErrInvalidParam.WithDetail("note payload is malformed")
		}
		return backend.AddNote(ctx, req.OrderID, payload.Text)
	default:
		return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("unknown modification type %q", req.Type))
	}
}

// checkPermitted 校验订单状态允许该类修改
func checkPermitted(t entity.ModificationType, order *entity.Order) error {
	if order == nil {
		return apperrors.ErrOrderNotFound
	}
	switch t {
	case entity.ModificationCancel:
		if !order.Cancellable() {
			return apperrors.ErrModificationNotPermitted.WithDetail(
				fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
		}
	case entity.ModificationAddressUpdate:
		if !order.AddressUpdatable() {
			return apperrors.ErrModificationNotPermitted.WithDetail(
				fmt.Sprintf("address cannot be changed once the order is %s", order.Status))
		}
	case entity.ModificationRefund:
		if !order.Refundable() {
			return apperrors.ErrModificationNotPermitted.WithDetail(
				fmt.Sprintf("order in status %s is not eligible for a refund", order.Status))
		}
	case entity.ModificationNote:
		// 备注无状态前置
	}
	return nil
}

func (s *Service) publishAudit(ctx context.Context, tenantID, action string, req *entity.ModificationRequest) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.PublishAuditLog(ctx, &messaging.AuditLogMessage{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: "modification_request",
		ResourceID:   req.ID,
		RequestID:    req.ConversationID,
		Changes: map[string]interface{}{
			"status": string(req.Status),
			"type":   string(req.Type),
			"order":  req.OrderID,
		},
	})
	if err != nil {
		// 审计流发布失败不阻断主流程，落库的轨迹仍完整
		logger.Warn(ctx, "audit publish failed", "modification_id", req.ID, "error", err)
	}
}
