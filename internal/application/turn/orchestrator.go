// Package turn 编排单个对话轮次：检索、商品融合与订单查询并发执行，
// 共享截止时间，任一数据源失败降级为缺失而不是整轮失败。
package turn

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"shoply-ai-cs-api/internal/application/fusion"
	"shoply-ai-cs-api/internal/application/search"
	"shoply-ai-cs-api/internal/application/verification"
	"shoply-ai-cs-api/internal/domain/entity"
	apperrors "shoply-ai-cs-api/pkg/errors"
	"shoply-ai-cs-api/pkg/logger"
)

var tracer = otel.Tracer("turn")

// 身份验证提示，逐字入上下文，下游模型原样转述
const verificationPrompt = `The customer is asking about order details but has not verified their identity. ` +
	`Ask them for their order number together with the email address or postal code used on the order. ` +
	`Do not reveal any order information until verification succeeds.`

// Input 单轮输入
type Input struct {
	Tenant         *entity.Tenant
	ConversationID string
	Message        string

	// ContextBudget 0 表示用装配器默认预算
	ContextBudget int
}

// Result 单轮装配结果。缺失的数据源记录在 Degraded 里。
type Result struct {
	Retrieval *search.ContextBlock  `json:"retrieval,omitempty"`
	Product   *fusion.ProductAnswer `json:"product,omitempty"`
	Order     *fusion.OrderAnswer   `json:"order,omitempty"`

	VerificationPrompt string                   `json:"verification_prompt,omitempty"`
	Level              entity.VerificationLevel `json:"verification_level"`

	Degraded []string      `json:"degraded,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Orchestrator 轮次编排器
type Orchestrator struct {
	search       *search.Engine
	fusion       *fusion.Service
	verification *verification.Service

	deadline time.Duration
}

// NewOrchestrator 创建轮次编排器
func NewOrchestrator(searchEngine *search.Engine, fusionSvc *fusion.Service, verificationSvc *verification.Service, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = 3 * time.Second
	}
	return &Orchestrator{
		search:       searchEngine,
		fusion:       fusionSvc,
		verification: verificationSvc,
		deadline:     deadline,
	}
}

// Run 执行单轮装配。验证状态先于并发段读取，订单路径共享同一份会话视图。
func (o *Orchestrator) Run(ctx context.Context, in *Input) (*Result, error) {
	if in == nil || in.Tenant == nil {
		return nil, apperrors.ErrTenantNotFound
	}
	if in.Message == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("message is required")
	}

	ctx, span := tracer.Start(ctx, "turn.Run",
		trace.WithAttributes(
			attribute.String("tenant_id", in.Tenant.ID),
			attribute.String("conversation_id", in.ConversationID),
		))
	defer span.End()

	start := time.Now()
	result := &Result{}

	session, err := o.verification.Session(ctx, in.Tenant.ID, in.ConversationID)
	if err != nil {
		logger.Warn(ctx, "verification state unavailable, treating as unverified", "error", err)
		session = nil
	}
	if session != nil {
		result.Level = session.Level
	}

	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	var mu sync.Mutex
	degrade := func(source string, err error) {
		mu.Lock()
		result.Degraded = append(result.Degraded, source)
		mu.Unlock()
		logger.Warn(ctx, "turn source degraded", "source", source, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		block, err := o.runSearch(gctx, in)
		if err != nil {
			degrade("retrieval", err)
			return nil
		}
		mu.Lock()
		result.Retrieval = block
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		answer, err := o.fusion.LookupProduct(gctx, in.Tenant, in.Message)
		if err != nil {
			degrade("product", err)
			return nil
		}
		mu.Lock()
		result.Product = answer
		mu.Unlock()
		return nil
	})

	orderNumber := fusion.ExtractOrderNumber(in.Message)
	switch {
	case orderNumber != "":
		g.Go(func() error {
			answer, err := o.fusion.LookupOrder(gctx, in.Tenant, session, orderNumber)
			if err != nil {
				degrade("order", err)
				return nil
			}
			mu.Lock()
			result.Order = answer
			if answer != nil && answer.VerificationRequired {
				result.VerificationPrompt = verificationPrompt
			}
			mu.Unlock()
			return nil
		})
	case fusion.AsksOrderOverview(in.Message):
		// 没给订单号的订单询问走摘要列表，邮箱取自已验证的会话
		g.Go(func() error {
			var email string
			if session != nil {
				email = session.Email
			}
			answer, err := o.fusion.SearchOrders(gctx, in.Tenant, session, email)
			if err != nil {
				degrade("order", err)
				return nil
			}
			mu.Lock()
			result.Order = answer
			if answer != nil && answer.VerificationRequired {
				result.VerificationPrompt = verificationPrompt
			}
			mu.Unlock()
			return nil
		})
	}

	// 数据源各自降级，Wait 不会带错误返回
	_ = g.Wait()

	result.Elapsed = time.Since(start)
	sort.Strings(result.Degraded)
	span.SetAttributes(
		attribute.Int("turn.degraded_count", len(result.Degraded)),
		attribute.Int64("turn.elapsed_ms", result.Elapsed.Milliseconds()),
	)
	return result, nil
}

func (o *Orchestrator) runSearch(ctx context.Context, in *Input) (*search.ContextBlock, error) {
	if o.search == nil || !o.search.Enabled() {
		return nil, search.ErrSearchDisabled
	}
	out, err := o.search.Search(ctx, &search.SearchInput{
		TenantID: in.Tenant.ID,
		Query:    in.Message,
	}, in.ContextBudget)
	if err != nil {
		return nil, err
	}
	return out.Context, nil
}

// Render 把轮次结果渲染为下游模型的上下文文本
func (r *Result) Render() string {
	var sb strings.Builder

	if r.VerificationPrompt != "" {
		sb.WriteString(r.VerificationPrompt)
		sb.WriteString("\n\n")
	}

	if r.Product != nil {
		if r.Product.Product != nil {
			sb.WriteString(renderProduct(r.Product.Product))
			sb.WriteString("\n\n")
		} else if len(r.Product.OutOfStock) > 0 {
			sb.WriteString("Currently out of stock:\n")
			for _, p := range r.Product.OutOfStock {
				sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.Name, p.SKU))
			}
			sb.WriteString("\n")
		}
	}

	if r.Order != nil && r.Order.Order != nil {
		sb.WriteString(renderOrder(r.Order.Order))
		sb.WriteString("\n\n")
	}
	if r.Order != nil && len(r.Order.Summaries) > 0 {
		sb.WriteString("Orders on file:\n")
		for _, o := range r.Order.Summaries {
			sb.WriteString(fmt.Sprintf("- #%s %s %.2f %s\n", o.OrderNumber, o.Status, o.Total, o.Currency))
		}
		sb.WriteString("\n")
	}

	if r.Retrieval != nil {
		sb.WriteString(r.Retrieval.Render())
	}

	return strings.TrimSpace(sb.String())
}

func renderProduct(p *entity.Product) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Product %s (%s): %s", p.Name, p.SKU, p.StockStatus))
	if p.Price > 0 {
		sb.WriteString(fmt.Sprintf(", %.2f %s", p.Price, p.Currency))
	}
	if p.Source == "stored" {
		sb.WriteString(fmt.Sprintf(" (archived data from %s)", p.FetchedAt.Format("2006-01-02")))
	}
	return sb.String()
}

func renderOrder(o *entity.Order) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Order #%s: %s, %.2f %s", o.OrderNumber, o.Status, o.Total, o.Currency))
	for _, line := range o.Lines {
		sb.WriteString(fmt.Sprintf("\n- %dx %s (%s)", line.Quantity, line.Name, line.SKU))
	}
	return sb.String()
}
