package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/J-Enyeribe/TheChase/internal/domain"
	"github.com/J-Enyeribe/TheChase/internal/store"
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	repo     store.Repository
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	Role        domain.UserRole `json:"role"`
	FullName    string          `json:"full_name"`
	ExpiresAt   string          `json:"expires_at"`
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, repo store.Repository) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		repo:     repo,
	}
}

func (a *AuthManager) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a comparison so unknown emails cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZwLZ3fMmrA3pZ0qXoLVLZqVb1ncG2"), []byte(req.Password))
		return LoginResponse{}, errors.New("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return LoginResponse{}, errors.New("invalid credentials")
	}
	if !user.Active {
		return LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		FullName:    user.FullName,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		UserID: userID,
		Email:  claims.Email,
		Role:   domain.UserRole(claims.Role),
	}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "thechase",
		},
		Email: user.Email,
		Role:  string(user.Role),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
