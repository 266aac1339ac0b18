package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/storefront/internal/domain/models"
	security "github.com/linemk/storefront/internal/jwt-new"
	"github.com/linemk/storefront/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	log       *slog.Logger
	userRepo  storage.UserStorage
	tokenTTL  time.Duration
	jwtSecret string
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokenTTL time.Duration, jwtSecret string) *AuthService {
	return &AuthService{
		log:       log,
		userRepo:  userRepo,
		tokenTTL:  tokenTTL,
		jwtSecret: jwtSecret,
	}
}

// AuthResult — данные пользователя и выданный токен
type AuthResult struct {
	ID      int64  `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

// UserProfile — данные пользователя без хэша пароля
type UserProfile struct {
	ID        int64     `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

func toProfile(user *models.User) UserProfile {
	return UserProfile{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt,
	}
}

type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Profile(ctx context.Context, userID int64) (*UserProfile, error)
	Users(ctx context.Context, caller Caller) ([]UserProfile, error)
}

// Register создаёт пользователя; пароль хэшируется bcrypt (соль добавляется автоматически).
func (a *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	const op = "auth.Register"
	email = strings.ToLower(strings.TrimSpace(email))
	logger := a.log.With(slog.String("op", op), slog.String("email", email))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{Name: name, Email: email, PassHash: passHash})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			logger.Warn("user already exists")
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		logger.Error("failed to create user", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}

	logger.Info("user registered", slog.Int64("userID", user.ID))
	return a.issue(op, user)
}

// Login проверяет пароль и выдаёт JWT-токен.
// Отсутствующий пользователь и неверный пароль дают одну и ту же ошибку.
func (a *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "auth.Login"
	email = strings.ToLower(strings.TrimSpace(email))
	logger := a.log.With(slog.String("op", op), slog.String("email", email))
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return a.issue(op, user)
}

func (a *AuthService) issue(op string, user *models.User) (*AuthResult, error) {
	token, err := security.NewToken(user, a.tokenTTL, a.jwtSecret)
	if err != nil {
		a.log.Error("failed to generate token", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}
	return &AuthResult{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		Token:   token,
	}, nil
}

// Profile возвращает данные текущего пользователя.
func (a *AuthService) Profile(ctx context.Context, userID int64) (*UserProfile, error) {
	const op = "auth.Profile"
	logger := a.log.With(slog.String("op", op), slog.Int64("userID", userID))

	user, err := a.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	profile := toProfile(user)
	return &profile, nil
}

// Users возвращает список всех пользователей; доступно только администратору.
func (a *AuthService) Users(ctx context.Context, caller Caller) ([]UserProfile, error) {
	const op = "auth.Users"
	logger := a.log.With(slog.String("op", op), slog.Int64("userID", caller.UserID))

	if !caller.IsAdmin {
		logger.Warn("non-admin requested user list")
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	users, err := a.userRepo.ListUsers(ctx)
	if err != nil {
		logger.Error("failed to list users", slog.Any("error", err))
		return nil, &StorageError{Op: op, Err: err}
	}
	res := make([]UserProfile, 0, len(users))
	for _, u := range users {
		res = append(res, toProfile(u))
	}
	return res, nil
}

// AdminStatus перечитывает флаг администратора из базы, чтобы отзыв прав
// действовал сразу, а не после истечения токена. ok=false — пользователя больше нет.
func (a *AuthService) AdminStatus(ctx context.Context, userID int64) (isAdmin bool, ok bool, err error) {
	user, err := a.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return false, false, nil
		}
		return false, false, &StorageError{Op: "auth.AdminStatus", Err: err}
	}
	return user.IsAdmin, true, nil
}
