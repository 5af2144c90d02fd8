package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/apperr"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/account/domain"
)

// SessionRevoker 登出时吊销单个令牌，账号状态变化时吊销该客户的全部令牌
type SessionRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	RevokeCustomer(ctx context.Context, customerID string, ttl time.Duration) error
}

// AccountService 注册、登录、资料与地址簿
type AccountService struct {
	customers domain.CustomerRepository
	addresses domain.AddressRepository
	tokens    *auth.TokenManager
	sessions  SessionRevoker
	limiter   *httpx.KeyedLimiter
	events    mq.Publisher
	tracer    trace.Tracer
}

func NewAccountService(customers domain.CustomerRepository, addresses domain.AddressRepository, tokens *auth.TokenManager,
	sessions SessionRevoker, limiter *httpx.KeyedLimiter, events mq.Publisher, tracer trace.Tracer) *AccountService {
	return &AccountService{
		customers: customers,
		addresses: addresses,
		tokens:    tokens,
		sessions:  sessions,
		limiter:   limiter,
		events:    events,
		tracer:    tracer,
	}
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "account.Register")
	defer span.End()

	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name, err := domain.ValidateName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := time.Now().UTC()
	c := &domain.Customer{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         domain.RoleCustomer,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.customers.Create(ctx, c); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("customer.id", c.ID))
	s.publish(ctx, mq.EventCustomerSignedUp, c.ID, map[string]string{"customerId": c.ID, "email": c.Email, "name": c.Name})
	return c, nil
}

// Login 校验密码并签发会话令牌。同一邮箱+IP 组合受限流保护。
func (s *AccountService) Login(ctx context.Context, req LoginRequest, clientIP string) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "account.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.limiter != nil {
		if err := s.limiter.Check(email + "|" + clientIP); err != nil {
			logger.Ctx(ctx).Warn().Str("email", email).Str("ip", clientIP).Msg("login throttled")
			return nil, err
		}
	}
	c, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	ok, err := auth.CheckPassword(c.PasswordHash, req.Password)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	if !c.CanLogin() {
		return nil, domain.ErrAccountSuspended
	}
	token, claims, err := s.tokens.Issue(c.ID, c.Role)
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("customer", c.ID).Msg("customer logged in")
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, Customer: ToCustomerDTO(c)}, nil
}

// Logout 吊销当前令牌直到其自然过期
func (s *AccountService) Logout(ctx context.Context, p auth.Principal) error {
	ctx, span := s.tracer.Start(ctx, "account.Logout")
	defer span.End()

	if p.Claims == nil || p.Claims.ExpiresAt == nil {
		return nil
	}
	return s.sessions.Revoke(ctx, p.TokenID, p.Claims.ExpiresAt.Time)
}

func (s *AccountService) GetProfile(ctx context.Context, customerID string) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "account.GetProfile")
	defer span.End()
	return s.customers.FindByID(ctx, customerID)
}

func (s *AccountService) UpdateProfile(ctx context.Context, customerID string, req UpdateProfileRequest) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "account.UpdateProfile")
	defer span.End()

	name, err := domain.ValidateName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.customers.UpdateName(ctx, customerID, name); err != nil {
		return nil, err
	}
	return s.customers.FindByID(ctx, customerID)
}

func (s *AccountService) ChangePassword(ctx context.Context, customerID string, req ChangePasswordRequest) error {
	ctx, span := s.tracer.Start(ctx, "account.ChangePassword")
	defer span.End()

	c, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return err
	}
	ok, err := auth.CheckPassword(c.PasswordHash, req.OldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword == req.OldPassword {
		return apperr.InvalidInput("new password must differ from the old one")
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.customers.UpdatePassword(ctx, customerID, hash)
}

// SetStatus 后台封禁或解封账号
func (s *AccountService) SetStatus(ctx context.Context, customerID string, req SetStatusRequest) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "account.SetStatus")
	defer span.End()

	status := domain.CustomerStatus(strings.ToLower(req.Status))
	if status != domain.StatusActive && status != domain.StatusSuspended {
		return nil, apperr.InvalidInput("status must be active or suspended")
	}
	c, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}
	if err := s.customers.UpdateStatus(ctx, customerID, status); err != nil {
		return nil, err
	}
	// 已签发的令牌里带着旧身份，全部作废
	if err := s.sessions.RevokeCustomer(ctx, customerID, s.tokens.TTL()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("customer", customerID).Str("status", string(status)).Msg("customer status changed, sessions revoked")
	return s.customers.FindByID(ctx, customerID)
}

// AddAddress 第一条地址自动成为默认地址
func (s *AccountService) AddAddress(ctx context.Context, customerID string, req AddAddressRequest) (*domain.Address, error) {
	ctx, span := s.tracer.Start(ctx, "account.AddAddress")
	defer span.End()

	a := &domain.Address{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Line1:      req.Line1,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		IsDefault:  req.IsDefault,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	n, err := s.addresses.CountByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if n >= domain.MaxAddresses {
		return nil, domain.ErrTooManyAddresses
	}
	if n == 0 {
		a.IsDefault = true
	}
	if err := s.addresses.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountService) ListAddresses(ctx context.Context, customerID string) ([]*domain.Address, error) {
	ctx, span := s.tracer.Start(ctx, "account.ListAddresses")
	defer span.End()
	return s.addresses.ListByCustomer(ctx, customerID)
}

// GetAddress 只能读到自己的地址，结算时使用
func (s *AccountService) GetAddress(ctx context.Context, customerID, addressID string) (*domain.Address, error) {
	ctx, span := s.tracer.Start(ctx, "account.GetAddress")
	defer span.End()
	return s.addresses.FindByID(ctx, customerID, addressID)
}

func (s *AccountService) DeleteAddress(ctx context.Context, customerID, addressID string) error {
	ctx, span := s.tracer.Start(ctx, "account.DeleteAddress")
	defer span.End()
	return s.addresses.Delete(ctx, customerID, addressID)
}

// publish 发布失败只记日志，不影响主流程
func (s *AccountService) publish(ctx context.Context, eventType, key string, payload any) {
	if s.events == nil {
		return
	}
	ev, err := mq.NewEvent(eventType, key, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
