// Package entity 定义领域实体
package entity

import (
	"time"
)

// CommerceBackendKind 租户配置的商城后端类型
type CommerceBackendKind string

const (
	// BackendNone 租户未接入实时商城后端，融合层只用抓取存档
	BackendNone CommerceBackendKind = "none"
	// BackendREST 通用 JSON 商城 API
	BackendREST CommerceBackendKind = "rest"
)

// Tenant 租户。每个租户对应一个接入的商家站点。
type Tenant struct {
	ID     string `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name   string `json:"name" gorm:"type:varchar(128);not null"`
	Domain string `json:"domain" gorm:"type:varchar(256);uniqueIndex;not null"`

	CommerceBackend CommerceBackendKind `json:"commerce_backend" gorm:"type:varchar(32);not null;default:'none'"`
	CommerceBaseURL string              `json:"commerce_base_url,omitempty" gorm:"type:varchar(512)"`
	CommerceAPIKey  string              `json:"-" gorm:"type:varchar(256)"`

	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Tenant) TableName() string {
	return "tenants"
}
