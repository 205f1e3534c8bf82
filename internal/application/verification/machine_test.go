package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/infrastructure/commerce"
	"shoply-ai-cs-api/internal/infrastructure/persistence/memory"
	apperrors "shoply-ai-cs-api/pkg/errors"
)

type fakeBackend struct {
	commerce.Backend
	orders map[string]*entity.Order
}

func (f *fakeBackend) Kind() entity.CommerceBackendKind { return entity.BackendREST }

func (f *fakeBackend) GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error) {
	if o, ok := f.orders[orderNumber]; ok {
		return o, nil
	}
	return nil, apperrors.ErrOrderNotFound
}

type fakeResolver struct {
	backend commerce.Backend
}

func (f *fakeResolver) ForTenant(tenant *entity.Tenant) commerce.Backend {
	if f.backend == nil {
		return commerce.NewNoneBackend()
	}
	return f.backend
}

func testTenant() *entity.Tenant {
	return &entity.Tenant{ID: "tenant-1", Domain: "shop.example.com", CommerceBackend: entity.BackendREST}
}

func testOrder() *entity.Order {
	return &entity.Order{
		OrderNumber:   "100234",
		CustomerEmail: "Jo@Example.com",
		PostalCode:    "10115",
		Status:        entity.OrderShipped,
	}
}

func newTestService(backend commerce.Backend) (*Service, *memory.VerificationStore, *time.Time) {
	store := memory.NewVerificationStore()
	svc := NewService(store, &fakeResolver{backend: backend}, DefaultConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }
	return svc, store, clock
}

func TestVerifyIdentity_EmailMatch(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)

	// 邮箱大小写不敏感
	session, err := svc.VerifyIdentity(context.Background(), testTenant(), "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationPartial, session.Level)
	assert.Equal(t, "jo@example.com", session.Email)
	assert.Equal(t, "100234", session.OrderID)
}

func TestVerifyIdentity_PostalMatch(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)

	session, err := svc.VerifyIdentity(context.Background(), testTenant(), "conv-1", "100234", "", "101 15")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationPartial, session.Level)
}

func TestVerifyIdentity_Mismatch(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)

	_, err := svc.VerifyIdentity(context.Background(), testTenant(), "conv-1", "100234", "other@example.com", "")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeVerificationRequired, appErr.Code)
	// 失败响应不区分哪个要素不匹配
	assert.NotContains(t, appErr.Detail, "email")
	assert.NotContains(t, appErr.Detail, "postal")

	level, err := svc.CurrentLevel(context.Background(), "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationNone, level)
}

func TestVerifyIdentity_UnknownOrderSameError(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{}}
	svc, _, _ := newTestService(backend)

	_, err := svc.VerifyIdentity(context.Background(), testTenant(), "conv-1", "999999", "jo@example.com", "")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeVerificationRequired, appErr.Code)
}

func TestVerifyIdentity_EmailOnlyNeverUpgrades(t *testing.T) {
	// 邮箱是公开信息，哪怕能唯一定位到订单也不得升级
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)

	_, err := svc.VerifyIdentity(context.Background(), testTenant(), "conv-1", "", "jo@example.com", "")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeInvalidParam, appErr.Code)

	level, err := svc.CurrentLevel(context.Background(), "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationNone, level)
}

func TestOTPFlow_FullVerification(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, clock := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)

	delivery, err := svc.RequestOTP(ctx, tenant, "conv-1")
	require.NoError(t, err)
	require.Len(t, delivery.Code, 6)
	assert.Equal(t, "jo@example.com", delivery.Email)

	// 4 分钟后提交仍在有效期内
	*clock = clock.Add(4 * time.Minute)
	session, err := svc.SubmitOTP(ctx, tenant, "conv-1", delivery.Code)
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationFull, session.Level)
	// 验证码一次性，散列随升级清除
	assert.Empty(t, session.OTPCodeHash)
}

func TestSubmitOTP_Expired(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, clock := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)
	delivery, err := svc.RequestOTP(ctx, tenant, "conv-1")
	require.NoError(t, err)

	// 6 分钟后已过期，即使验证码正确
	*clock = clock.Add(6 * time.Minute)
	_, err = svc.SubmitOTP(ctx, tenant, "conv-1", delivery.Code)
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeOTPExpired, appErr.Code)

	level, err := svc.CurrentLevel(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationPartial, level)
}

func TestSubmitOTP_LockoutEvenWithCorrectCode(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)
	delivery, err := svc.RequestOTP(ctx, tenant, "conv-1")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == delivery.Code {
		wrong = "000001"
	}

	// 身份核对已消耗 1 次，再错 2 次用满窗口额度
	for i := 0; i < 2; i++ {
		_, err = svc.SubmitOTP(ctx, tenant, "conv-1", wrong)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeOTPMismatch, apperrors.AsAppError(err).Code)
	}

	// 额度耗尽后正确验证码也被拒绝
	_, err = svc.SubmitOTP(ctx, tenant, "conv-1", delivery.Code)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAttemptsExceeded, apperrors.AsAppError(err).Code)

	level, err := svc.CurrentLevel(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationPartial, level)
}

func TestLockout_WindowSlides(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, clock := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	for i := 0; i < 3; i++ {
		_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "other@example.com", "")
		require.Error(t, err)
	}
	_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAttemptsExceeded, apperrors.AsAppError(err).Code)

	// 窗口滑出后恢复
	*clock = clock.Add(16 * time.Minute)
	session, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationPartial, session.Level)
}

func TestAttempts_Snapshot(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, clock := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	status, err := svc.Attempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Attempts)
	assert.False(t, status.Locked)

	for i := 0; i < 3; i++ {
		_, err = svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "other@example.com", "")
		require.Error(t, err)
	}

	status, err = svc.Attempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Attempts)
	assert.Equal(t, 3, status.MaxAttempts)
	assert.True(t, status.Locked)

	// 窗口滑出后计数归零
	*clock = clock.Add(16 * time.Minute)
	status, err = svc.Attempts(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.Attempts)
	assert.False(t, status.Locked)
}

func TestRequestOTP_RequiresPartial(t *testing.T) {
	svc, _, _ := newTestService(&fakeBackend{})

	_, err := svc.RequestOTP(context.Background(), testTenant(), "conv-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeVerificationRequired, apperrors.AsAppError(err).Code)
}

func TestEndConversation_DestroysLevel(t *testing.T) {
	backend := &fakeBackend{orders: map[string]*entity.Order{"100234": testOrder()}}
	svc, _, _ := newTestService(backend)
	ctx := context.Background()
	tenant := testTenant()

	_, err := svc.VerifyIdentity(ctx, tenant, "conv-1", "100234", "jo@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.EndConversation(ctx, "tenant-1", "conv-1"))

	level, err := svc.CurrentLevel(ctx, "tenant-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationNone, level)
}

func TestGenerateOTP(t *testing.T) {
	code, err := GenerateOTP()
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestVerifyOTPHash(t *testing.T) {
	hash := HashOTP("482913")
	assert.True(t, VerifyOTPHash("482913", hash))
	assert.False(t, VerifyOTPHash("482914", hash))
	assert.NotEqual(t, "482913", hash)
}
