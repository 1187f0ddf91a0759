package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/config"
)

const (
	RoleStaff  = "staff"
	RoleMember = "member"

	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var errBadCredentials = apperr.Unauthenticated("no active account found with the given credentials")

// Claims carried by both token kinds. Subject is the user id.
type Claims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type Service struct {
	store      AccountStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
}

func NewService(store AccountStore, c config.AuthConfig, log logrus.FieldLogger) *Service {
	return &Service{
		store:      store,
		secret:     []byte(c.JWTSecret),
		accessTTL:  c.AccessTTL,
		refreshTTL: c.RefreshTTL,
		now:        time.Now,
		log:        log,
	}
}

func (s *Service) Secret() []byte { return s.secret }

// Login checks username/password and issues an access + refresh pair.
// Unknown users, wrong passwords and inactive accounts all get the same error.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if acct == nil || !acct.IsActive {
		return TokenPair{}, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, errBadCredentials
	}

	access, err := s.sign(acct, tokenAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(acct, tokenRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	s.log.WithField("user_id", acct.ID).Info("token issued")
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token. The account is
// re-read so deactivated users cannot keep refreshing.
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := ParseToken(s.secret, refresh, tokenRefresh, s.now)
	if err != nil {
		return "", apperr.Unauthenticated("token is invalid or expired")
	}
	acct, err := s.store.GetByID(ctx, claims.Subject)
	if err != nil {
		return "", err
	}
	if acct == nil || !acct.IsActive {
		return "", apperr.Unauthenticated("user is inactive or deleted")
	}
	return s.sign(acct, tokenAccess, s.accessTTL)
}

// Verify accepts either token kind.
func (s *Service) Verify(token string) error {
	if _, err := ParseToken(s.secret, token, "", s.now); err != nil {
		return apperr.Unauthenticated("token is invalid or expired")
	}
	return nil
}

func (s *Service) sign(acct *Account, kind string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role:      acct.Role(),
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates an HS256 token. kind "" accepts any token type.
func ParseToken(secret []byte, tokenStr, kind string, now func() time.Time) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		// alg 固定（none攻撃とか回避）
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if kind != "" && claims.TokenType != kind {
		return nil, errors.New("unexpected token type")
	}
	return &claims, nil
}
