// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"
)

// ModificationType 订单修改类型
type ModificationType string

const (
	ModificationCancel        ModificationType = "cancel"
	ModificationAddressUpdate ModificationType = "address_update"
	ModificationRefund        ModificationType = "refund"
	ModificationNote          ModificationType = "note"
)

// ModificationStatus 修改请求状态。只允许前向迁移，终态不可复活。
type ModificationStatus string

const (
	StatusPendingConfirmation ModificationStatus = "pending_confirmation"
	StatusConfirmed           ModificationStatus = "confirmed"
	StatusExecuted            ModificationStatus = "executed"
	StatusFailed              ModificationStatus = "failed"
	StatusCancelled           ModificationStatus = "cancelled"
)

// rank 状态序。前向迁移要求目标状态的序严格大于当前状态。
func (s ModificationStatus) rank() int {
	switch s {
	case StatusPendingConfirmation:
		return 1
	case StatusConfirmed:
		return 2
	case StatusExecuted, StatusFailed, StatusCancelled:
		return 3
	default:
		return 0
	}
}

// Terminal 检查是否为终态
func (s ModificationStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo 检查状态迁移是否合法。
// executed 只能从 confirmed 到达；终态之后不允许任何迁移。
func (s ModificationStatus) CanTransitionTo(next ModificationStatus) bool {
	if s.Terminal() {
		return false
	}
	if next.rank() <= s.rank() {
		return false
	}
	if next == StatusExecuted && s != StatusConfirmed {
		return false
	}
	return true
}

// AuditEntry 审计条目。只追加，不改写。
type AuditEntry struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ModificationID string    `json:"modification_id" gorm:"type:uuid;index;not null"`
	Timestamp      time.Time `json:"timestamp" gorm:"autoCreateTime;not null"`
	Actor          string    `json:"actor" gorm:"type:varchar(128);not null"`
	Action         string    `json:"action" gorm:"type:varchar(64);not null"`
	Result         string    `json:"result" gorm:"type:varchar(256)"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}

// ModificationRequest 订单修改请求。永久保留用于合规审查。
type ModificationRequest struct {
	ID                string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID          string             `json:"tenant_id" gorm:"type:uuid;index;not null"`
	ConversationID    string             `json:"conversation_id" gorm:"type:varchar(64);index;not null"`
	CustomerEmail     string             `json:"customer_email" gorm:"type:varchar(320);not null"`
	OrderID           string             `json:"order_id" gorm:"type:varchar(64);index;not null"`
	Type              ModificationType   `json:"type" gorm:"type:varchar(32);not null"`
	Status            ModificationStatus `json:"status" gorm:"type:varchar(32);not null;default:'pending_confirmation'"`
	ConfirmationToken string             `json:"confirmation_token" gorm:"type:varchar(64);uniqueIndex"`
	Payload           json.RawMessage    `json:"payload,omitempty" gorm:"type:jsonb"` // 类型相关参数（新地址、备注文本等）
	CreatedAt         time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time          `json:"updated_at" gorm:"autoUpdateTime"`

	AuditEntries []AuditEntry `json:"audit_entries,omitempty" gorm:"foreignKey:ModificationID"`
}

func (ModificationRequest) TableName() string {
	return "modification_requests"
}

// NewModificationRequest 创建待确认的修改请求
func NewModificationRequest(tenantID, conversationID, customerEmail, orderID string, modType ModificationType, token string, payload json.RawMessage) *ModificationRequest {
	now := time.Now()
	return &ModificationRequest{
		TenantID:          tenantID,
		ConversationID:    conversationID,
		CustomerEmail:     customerEmail,
		OrderID:           orderID,
		Type:              modType,
		Status:            StatusPendingConfirmation,
		ConfirmationToken: token,
		Payload:           payload,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
