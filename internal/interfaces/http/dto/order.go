package dto

// OrderSearchRequest 订单摘要检索请求。邮箱与客户姓名二选一。
type OrderSearchRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Email          string `json:"email,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
}
