package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ourstore/storefront/app/models"
	"github.com/ourstore/storefront/app/repositories"
	"github.com/ourstore/storefront/pkg/apperr"
	"github.com/ourstore/storefront/pkg/auth"
	"github.com/ourstore/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RegisterInput struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone"    validate:"nullable,phone"`
}

type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is returned by register, login and refresh.
type TokenPair struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

type AuthService struct {
	users UserStore
}

func NewAuthService(users UserStore) *AuthService {
	return &AuthService{users: users}
}

func (s *AuthService) issue(u *models.User) (*TokenPair, error) {
	token, err := auth.GenerateToken(u.ID.Hex(), u.Role)
	if err != nil {
		return nil, apperr.Internal(err, "sign access token")
	}
	refresh, err := auth.GenerateRefreshToken(u.ID.Hex(), u.Role)
	if err != nil {
		return nil, apperr.Internal(err, "sign refresh token")
	}
	return &TokenPair{Token: token, RefreshToken: refresh, User: u}, nil
}

// Register creates a customer account. Accounts created here are never
// admins.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	u := &models.User{
		FullName: strings.TrimSpace(in.FullName),
		Email:    in.Email,
		Password: hash,
		Phone:    in.Phone,
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.Conflict("An account with this email already exists")
		}
		return nil, storeErr(err, "User")
	}
	logger.WithCtx(ctx).Info("user registered", "user_id", u.ID.Hex())
	return s.issue(u)
}

// Login checks credentials. Unknown emails and wrong passwords get the
// same answer.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	u, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, storeErr(err, "User")
	}
	if !auth.CheckPassword(u.Password, in.Password) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if !u.IsActive {
		return nil, apperr.Unauthorized("Account is disabled")
	}
	return s.issue(u)
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	u, err := s.user(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, caller auth.Principal) (*models.User, error) {
	return s.user(ctx, caller.UserID)
}

// ResolvePrincipal loads the token subject for the auth middleware. The
// stored role is authoritative.
func (s *AuthService) ResolvePrincipal(ctx context.Context, userID string) (auth.Principal, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{UserID: u.ID.Hex(), Email: u.Email, Role: u.Role}, nil
}

func (s *AuthService) user(ctx context.Context, userID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid token subject")
	}
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Unauthorized("Account no longer exists")
	}
	if err != nil {
		return nil, storeErr(err, "User")
	}
	if !u.IsActive {
		return nil, apperr.Forbidden("Account is disabled")
	}
	return u, nil
}
