// Package main 系统初始化入口：建表、建集合、种默认租户
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"shoply-ai-cs-api/internal/config"
	"shoply-ai-cs-api/internal/domain/entity"
	"shoply-ai-cs-api/internal/infrastructure/persistence/milvus"
	"shoply-ai-cs-api/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. PostgreSQL 表结构
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	fmt.Println("Migrating postgres schema...")
	if err := pgClient.DB().WithContext(ctx).AutoMigrate(
		&entity.Tenant{},
		&entity.ModificationRequest{},
		&entity.AuditEntry{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// 3. Milvus 集合与索引
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		fmt.Printf("Milvus unavailable, skipping collection setup: %v\n", err)
	} else {
		defer func() { _ = milvusClient.Close() }()
		fmt.Println("Ensuring milvus collection...")
		if err := milvus.NewRepository(milvusClient).EnsureCollection(ctx); err != nil {
			log.Fatalf("failed to ensure milvus collection: %v", err)
		}
	}

	// 4. 默认租户
	tenantRepo := postgres.NewTenantRepository(pgClient)

	domain := os.Getenv("BOOTSTRAP_TENANT_DOMAIN")
	if domain == "" {
		domain = "default.shoply.local"
	}
	name := os.Getenv("BOOTSTRAP_TENANT_NAME")
	if name == "" {
		name = "Default Tenant"
	}

	existing, err := tenantRepo.GetByDomain(ctx, domain)
	if err != nil {
		log.Fatalf("failed to check tenant existence: %v", err)
	}

	if existing == nil {
		fmt.Printf("Creating default tenant: %s...\n", domain)
		tenant := &entity.Tenant{
			Name:            name,
			Domain:          domain,
			CommerceBackend: entity.BackendNone,
			Active:          true,
		}
		if err := tenantRepo.Create(ctx, tenant); err != nil {
			log.Fatalf("failed to create default tenant: %v", err)
		}
		fmt.Printf("Default tenant created with ID: %s\n", tenant.ID)
	} else {
		fmt.Printf("Default tenant already exists with ID: %s\n", existing.ID)
	}

	fmt.Println("Bootstrap completed successfully.")
}
