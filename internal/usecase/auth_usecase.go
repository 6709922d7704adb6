package usecase

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// 会員登録とログイン。カート・注文側はここが渡すidentityを信用する。
type AuthUsecase struct {
	userRepo   repo.UserRepository
	jwtSecret  []byte
	accessTTL  time.Duration
	bcryptCost int
}

func NewAuthUsecase(userRepo repo.UserRepository, jwtSecret string, accessTTL time.Duration) *AuthUsecase {
	return &AuthUsecase{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		bcryptCost: 12,
	}
}

type RegisterInput struct {
	Email    string
	Password string
}

type UserOutput struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginOutput struct {
	User        UserOutput `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresIn   int        `json:"expires_in"`
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (UserOutput, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return UserOutput{}, newValidationError("invalid email")
	}
	if len(in.Password) < 8 || len(in.Password) > 72 {
		return UserOutput{}, newValidationError("password must be 8-72 chars")
	}

	//重複チェック
	if _, err := u.userRepo.FindByEmail(ctx, email); err == nil {
		return UserOutput{}, newValidationError("email already registered")
	} else if err != repo.ErrNotFound {
		return UserOutput{}, newInternal()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.bcryptCost)
	if err != nil {
		return UserOutput{}, newInternal()
	}

	user := model.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := u.userRepo.Create(ctx, &user); err != nil {
		return UserOutput{}, newInternal()
	}

	return UserOutput{ID: user.ID, Email: user.Email, Role: string(user.Role)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (LoginOutput, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return LoginOutput{}, newValidationError("email and password are required")
	}

	user, err := u.userRepo.FindByEmail(ctx, email)
	if err == repo.ErrNotFound {
		//存在しないメールでも同じエラーにする
		return LoginOutput{}, newUnauthorized()
	}
	if err != nil {
		return LoginOutput{}, newInternal()
	}
	if !user.IsActive {
		return LoginOutput{}, newForbidden()
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return LoginOutput{}, newUnauthorized()
	}

	now := time.Now()
	token, err := u.issue(user, now)
	if err != nil {
		return LoginOutput{}, newInternal()
	}

	//最終ログインを記録（失敗してもログインは成立させる）
	user.LastLoginAt = &now
	_ = u.userRepo.Update(ctx, user)

	return LoginOutput{
		User:        UserOutput{ID: user.ID, Email: user.Email, Role: string(user.Role)},
		AccessToken: token,
		ExpiresIn:   int(u.accessTTL.Seconds()),
	}, nil
}

// HS256でアクセストークンを発行する
func (u *AuthUsecase) issue(user *model.User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(u.accessTTL).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(u.jwtSecret)
}
