package verification

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/domain/repository"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"
	"shoply-ai-cs-api/pkg/metrics"
)

var tracer = otel.Tracer("verification")

// BackendResolver 按租户解析商城后端
type BackendResolver interface {
	ForTenant(tenant *entity.Tenant) commerce.Backend
}

// Config 验证流程参数
type Config struct {
	OTPTTL        time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	SessionTTL    time.Duration
}

// DefaultConfig 默认验证参数：OTP 5 分钟有效，15 分钟滑动窗口内最多 3 次尝试
func DefaultConfig() Config {
	return Config{
		OTPTTL:        5 * time.Minute,
		MaxAttempts:   3,
		AttemptWindow: 15 * time.Minute,
		SessionTTL:    2 * time.Hour,
	}
}

// OTPDelivery OTP 签发结果。Code 只交给投递通道，不进日志不进响应体。
type OTPDelivery struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Service 身份验证状态机
type Service struct {
	store    repository.VerificationStore
	resolver BackendResolver
	config   Config

	now func() time.Time
}

// NewService 创建验证服务
func NewService(store repository.VerificationStore, resolver BackendResolver, config Config) *Service {
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.AttemptWindow <= 0 {
		config.AttemptWindow = 15 * time.Minute
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 2 * time.Hour
	}
	return &Service{
		store:    store,
		resolver: resolver,
		config:   config,
		now:      time.Now,
	}
}

// CurrentLevel 返回会话当前验证级别，无会话视为未验证
func (s *Service) CurrentLevel(ctx context.Context, tenantID, conversationID string) (entity.VerificationLevel, error) {
	session, err := s.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		return entity.VerificationNone, err
	}
	if session == nil {
		return entity.VerificationNone, nil
	}
	return session.Level, nil
}

// Session 返回会话验证状态，无会话时返回 (nil, nil)
func (s *Service) Session(ctx context.Context, tenantID, conversationID string) (*entity.VerificationSession, error) {
	return s.store.Get(ctx, tenantID, conversationID)
}

// AttemptStatus 会话的尝试计数快照
type AttemptStatus struct {
	Attempts    int
	MaxAttempts int
	WindowStart time.Time
	Locked      bool
}

// Attempts 返回会话当前窗口内的尝试计数。
// 直接读计数器而非会话：仅失败过的会话可能从未写入会话记录。
func (s *Service) Attempts(ctx context.Context, tenantID, conversationID string) (*AttemptStatus, error) {
	status := &AttemptStatus{MaxAttempts: s.config.MaxAttempts}

	count, windowStart, err := s.store.GetAttempts(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if windowStart.IsZero() || s.now().Sub(windowStart) > s.config.AttemptWindow {
		return status, nil
	}

	status.Attempts = count
	status.WindowStart = windowStart
	status.Locked = count >= s.config.MaxAttempts
	return status, nil
}

// VerifyIdentity 订单要素匹配：订单号 + 邮箱或邮编命中即升级到 partial。
// 每次提交先过原子计数，超限即锁定；失败响应不区分哪个要素不匹配。
func (s *Service) VerifyIdentity(ctx context.Context, tenant *entity.Tenant, conversationID, orderNumber, email, postalCode string) (*entity.VerificationSession, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	// 订单号是必选要素：邮箱是公开信息，单独命中不得升级
	if orderNumber == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("order number is required")
	}
	if email == "" && postalCode == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("email or postal code is required")
	}

	ctx, span := tracer.Start(ctx, "verification.VerifyIdentity",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	if err := s.consumeAttempt(ctx, tenant.ID, conversationID); err != nil {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "identity", "locked").Inc()
		return nil, err
	}

	order, err := s.matchOrder(ctx, tenant, orderNumber)
	if err != nil {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "identity", "error").Inc()
		return nil, err
	}

	if order == nil || !identityMatches(order, email, postalCode) {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "identity", "mismatch").Inc()
		logger.Warn(ctx, "identity verification mismatch", "conversation_id", conversationID)
		// 不透露是订单号、邮箱还是邮编不匹配
		return nil, apperrors.ErrVerificationRequired.WithDetail("the details provided do not match our records")
	}

	session, err := s.loadOrCreate(ctx, tenant.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if session.Level < entity.VerificationPartial {
		session.Level = entity.VerificationPartial
	}
	session.Email = strings.ToLower(strings.TrimSpace(order.CustomerEmail))
	session.OrderID = order.OrderNumber
	session.UpdatedAt = s.now()

	if err := s.store.Put(ctx, session, s.config.SessionTTL); err != nil {
		return nil, err
	}

	metrics.VerificationAttempts.WithLabelValues(tenant.ID, "identity", "ok").Inc()
	span.SetAttributes(attribute.String("verification.level", session.Level.String()))
	return session, nil
}

// RequestOTP 为 partial 会话签发 OTP。验证码散列入会话，明文交给投递通道。
func (s *Service) RequestOTP(ctx context.Context, tenant *entity.Tenant, conversationID string) (*OTPDelivery, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}

	ctx, span := tracer.Start(ctx, "verification.RequestOTP",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	session, err := s.store.Get(ctx, tenant.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.Level.AtLeast(entity.VerificationPartial) {
		return nil, apperrors.ErrVerificationRequired.WithDetail("identity verification is required before requesting a code")
	}
	if session.Email == "" {
		return nil, apperrors.ErrVerificationRequired.WithDetail("no email on record for this conversation")
	}

	code, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session.OTPCodeHash = HashOTP(code)
	session.OTPExpiresAt = now.Add(s.config.OTPTTL)
	session.UpdatedAt = now

	if err := s.store.Put(ctx, session, s.config.SessionTTL); err != nil {
		return nil, err
	}

	logger.Info(ctx, "otp issued",
		"conversation_id", conversationID,
		"code", MaskOTP(code),
		"expires_at", session.OTPExpiresAt)

	return &OTPDelivery{
		Email:     session.Email,
		Code:      code,
		ExpiresAt: session.OTPExpiresAt,
	}, nil
}

// SubmitOTP 校验提交的验证码，命中升级到 full。
// 计数在比较之前消耗：锁定期内即使验证码正确也拒绝。
func (s *Service) SubmitOTP(ctx context.Context, tenant *entity.Tenant, conversationID, code string) (*entity.VerificationSession, error) {
	if tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if len(code) != otpDigits {
		return nil, apperrors.ErrOTPMismatch
	}

	ctx, span := tracer.Start(ctx, "verification.SubmitOTP",
		trace.WithAttributes(attribute.String("tenant_id", tenant.ID)))
	defer span.End()

	session, err := s.store.Get(ctx, tenant.ID, conversationID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.OTPCodeHash == "" {
		return nil, apperrors.ErrVerificationRequired.WithDetail("no verification code was requested")
	}

	if err := s.consumeAttempt(ctx, tenant.ID, conversationID); err != nil {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "otp", "locked").Inc()
		return nil, err
	}

	now := s.now()
	if !session.OTPValid(now) {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "otp", "expired").Inc()
		return nil, apperrors.ErrOTPExpired
	}
	if !VerifyOTPHash(code, session.OTPCodeHash) {
		metrics.VerificationAttempts.WithLabelValues(tenant.ID, "otp", "mismatch").Inc()
		return nil, apperrors.ErrOTPMismatch
	}

	session.Level = entity.VerificationFull
	session.OTPCodeHash = ""
	session.OTPExpiresAt = time.Time{}
	session.UpdatedAt = now

	if err := s.store.Put(ctx, session, s.config.SessionTTL); err != nil {
		return nil, err
	}

	metrics.VerificationAttempts.WithLabelValues(tenant.ID, "otp", "ok").Inc()
	span.SetAttributes(attribute.String("verification.level", session.Level.String()))
	return session, nil
}

// EndConversation 销毁会话验证状态。级别不跨会话传递。
func (s *Service) EndConversation(ctx context.Context, tenantID, conversationID string) error {
	return s.store.Delete(ctx, tenantID, conversationID)
}

func (s *Service) loadOrCreate(ctx context.Context, tenantID, conversationID string) (*entity.VerificationSession, error) {
	session, err := s.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = entity.NewVerificationSession(tenantID, conversationID)
	}
	return session, nil
}

// consumeAttempt 原子消耗一次尝试额度，超限返回锁定错误
func (s *Service) consumeAttempt(ctx context.Context, tenantID, conversationID string) error {
	count, err := s.store.IncrementAttempts(ctx, tenantID, conversationID, s.now(), s.config.AttemptWindow)
	if err != nil {
		return err
	}
	if count > s.config.MaxAttempts {
		metrics.VerificationLockouts.WithLabelValues(tenantID).Inc()
		logger.Warn(ctx, "verification lockout",
			"conversation_id", conversationID,
			"attempts", count)
		return apperrors.ErrAttemptsExceeded.WithDetail("too many attempts, try again later")
	}
	return nil
}

// matchOrder 按订单号取待核对的订单
func (s *Service) matchOrder(ctx context.Context, tenant *entity.Tenant, orderNumber string) (*entity.Order, error) {
	backend := s.resolver.ForTenant(tenant)
	if backend == nil || backend.Kind() == entity.BackendNone {
		return nil, apperrors.ErrSourceUnavailable.WithDetail("tenant has no commerce backend configured")
	}

	order, err := backend.GetOrder(ctx, orderNumber)
	if err != nil {
		// 订单不存在与要素不匹配走同一失败响应
		if appErr := apperrors.AsAppError(err); appErr != nil &&
			(appErr.Code == apperrors.CodeNotFound || appErr.Code == apperrors.CodeOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// identityMatches 邮箱或邮编任一要素与订单记录一致即通过
func identityMatches(order *entity.Order, email, postalCode string) bool {
	if email != "" && strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(order.CustomerEmail)) {
		return true
	}
	if postalCode != "" && normalizePostal(postalCode) == normalizePostal(order.PostalCode) {
		return order.PostalCode != ""
	}
	return false
}

func normalizePostal(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}
