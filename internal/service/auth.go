package service

import (
	"context"
	"errors"
	"net/mail"
	"storefront-service/internal/model"
	"storefront-service/prometheus"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	GenerateToken(userID uint, username string, isAdmin bool) (string, error)
}

type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
	Address         string `json:"address"`
	Phone           string `json:"phone"`
}

// ProfileInput updates the caller's account. Nil fields are left unchanged.
type ProfileInput struct {
	FullName        *string `json:"full_name"`
	Email           *string `json:"email"`
	Address         *string `json:"address"`
	Phone           *string `json:"phone"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`
}

type LoginResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

const minPasswordLength = 6

type AuthService struct {
	db     *gorm.DB
	log    *zap.Logger
	tokens TokenIssuer
	cost   int
}

func NewAuthService(db *gorm.DB, log *zap.Logger, tokens TokenIssuer) *AuthService {
	return &AuthService{db: db, log: log, tokens: tokens, cost: bcrypt.DefaultCost}
}

// Register creates a shopper account with a unique username and email
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case len(in.Username) < 3 || len(in.Username) > 80:
		return nil, invalidInput("username must be between 3 and 80 characters")
	case !validEmail(in.Email):
		return nil, invalidInput("email is not valid")
	case len(in.Password) < minPasswordLength:
		return nil, invalidInput("password must be at least 6 characters")
	case in.Password != in.ConfirmPassword:
		return nil, invalidInput("passwords do not match")
	}
	defer prometheus.TrackDBOperation("register")(time.Now())

	user := model.User{
		Username: in.Username,
		Email:    in.Email,
		FullName: strings.TrimSpace(in.FullName),
		Address:  strings.TrimSpace(in.Address),
		Phone:    strings.TrimSpace(in.Phone),
	}
	if err := s.create(ctx, &user, in.Password); err != nil {
		if errors.Is(err, ErrConflict) {
			prometheus.RecordAuthError("duplicate_user")
		}
		return nil, err
	}

	s.log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return &user, nil
}

// EnsureAdmin creates the bootstrap administrator when no user holds the username yet
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return persistence("check admin", err)
	}
	if count > 0 {
		return nil
	}
	if len(password) < minPasswordLength {
		return invalidInput("admin password must be at least 6 characters")
	}

	admin := model.User{Username: username, Email: email, IsAdmin: true}
	if err := s.create(ctx, &admin, password); err != nil {
		return err
	}
	s.log.Info("Admin account created", zap.String("username", username))
	return nil
}

func (s *AuthService) create(ctx context.Context, user *model.User, password string) error {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&model.User{}).Where("username = ? OR email = ?", user.Username, user.Email).Count(&count).Error; err != nil {
		return persistence("check user", err)
	}
	if count > 0 {
		return ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	user.Password = string(hash)

	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return persistence("create user", err)
	}
	return nil
}

// Login verifies the credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prometheus.RecordAuthError("user_not_found")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, persistence("load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		prometheus.RecordAuthError("token_generation_failed")
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *AuthService) Profile(ctx context.Context, p model.Principal) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, p.UserID).Error; err != nil {
		return nil, lookup("load user", err)
	}
	return &user, nil
}

// UpdateProfile changes contact details and, when the current password matches, the password
func (s *AuthService) UpdateProfile(ctx context.Context, p model.Principal, in ProfileInput) (*model.User, error) {
	db := s.db.WithContext(ctx)

	var user model.User
	if err := db.First(&user, p.UserID).Error; err != nil {
		return nil, lookup("load user", err)
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if !validEmail(email) {
			return nil, invalidInput("email is not valid")
		}
		if email != user.Email {
			var count int64
			if err := db.Model(&model.User{}).Where("email = ? AND id <> ?", email, user.ID).Count(&count).Error; err != nil {
				return nil, persistence("check email", err)
			}
			if count > 0 {
				return nil, ErrConflict
			}
		}
		user.Email = email
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Address != nil {
		user.Address = strings.TrimSpace(*in.Address)
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
	}

	if in.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
			prometheus.RecordAuthError("invalid_password")
			return nil, ErrInvalidCredentials
		}
		if len(in.NewPassword) < minPasswordLength {
			return nil, invalidInput("password must be at least 6 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hash)
	}

	if err := db.Save(&user).Error; err != nil {
		return nil, persistence("update user", err)
	}
	return &user, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
