package membership

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"library-backend/internal/platform/apperr"
	"library-backend/internal/platform/clock"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/web"
)

const (
	maxUsername       = 150
	minPasswordLength = 8
)

var validate = validator.New()

type Service struct {
	store Repository
	clock clock.Clock
	id    clock.IDGen
	log   logrus.FieldLogger
	cost  int
}

func NewService(conn *sqlx.DB, log logrus.FieldLogger) *Service {
	return NewServiceWith(NewStore(conn), clock.Real(), clock.ULID(), log)
}

func NewServiceWith(store Repository, c clock.Clock, id clock.IDGen, log logrus.FieldLogger) *Service {
	return &Service{store: store, clock: c, id: id, log: log, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// 英数字と @ . + - _ のみ
func checkUsername(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Invalid("username is required")
	}
	if utf8.RuneCountInString(v) > maxUsername {
		return "", apperr.Invalid("username must be at most 150 characters")
	}
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("@.+-_", r) {
			continue
		}
		return "", apperr.Invalid("username may contain only letters, digits and @/./+/-/_")
	}
	return v, nil
}

func checkEmail(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if err := validate.Var(v, "email"); err != nil {
		return "", apperr.Invalid("enter a valid email address")
	}
	return v, nil
}

func (s *Service) hash(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", apperr.Invalid("password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ===== Users =====

// CreateUser registers a regular member. date_of_membership is today's date.
func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (UserResponse, error) {
	return s.create(ctx, in, false)
}

// CreateStaffUser is used by the admin CLI; staff may manage the catalog and other users.
func (s *Service) CreateStaffUser(ctx context.Context, in CreateUserRequest) (UserResponse, error) {
	return s.create(ctx, in, true)
}

func (s *Service) create(ctx context.Context, in CreateUserRequest, staff bool) (UserResponse, error) {
	username, err := checkUsername(in.Username)
	if err != nil {
		return UserResponse{}, err
	}
	email, err := checkEmail(in.Email)
	if err != nil {
		return UserResponse{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return UserResponse{}, err
	}

	now := s.clock.Now()
	y, m, d := now.Date()
	u := &User{
		ID:               s.id.NewULID(now),
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		DateOfMembership: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		IsActive:         true,
		IsStaff:          staff,
		CreatedAt:        now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return UserResponse{}, apperr.Invalid("a user with that username already exists")
		}
		return UserResponse{}, err
	}

	s.log.WithFields(logrus.Fields{"user_id": u.ID, "staff": staff}).Info("user created")
	return toResponse(u), nil
}

func (s *Service) GetUser(ctx context.Context, id string) (UserResponse, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return UserResponse{}, apperr.NotFound("user not found")
		}
		return UserResponse{}, err
	}
	return toResponse(u), nil
}

func (s *Service) ListUsers(ctx context.Context, p web.Page) (ListUsersResult, error) {
	p = p.Normalize()
	rows, total, err := s.store.List(ctx, p)
	if err != nil {
		return ListUsersResult{}, err
	}
	items := make([]UserResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return ListUsersResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserRequest) (UserResponse, error) {
	var patch UserPatch
	if in.Username != nil {
		v, err := checkUsername(*in.Username)
		if err != nil {
			return UserResponse{}, err
		}
		patch.Username = &v
	}
	if in.Email != nil {
		v, err := checkEmail(*in.Email)
		if err != nil {
			return UserResponse{}, err
		}
		patch.Email = &v
	}
	if in.Password != nil {
		h, err := s.hash(*in.Password)
		if err != nil {
			return UserResponse{}, err
		}
		patch.PasswordHash = &h
	}
	patch.IsActive = in.IsActive

	u, err := s.store.Update(ctx, id, patch)
	if err != nil {
		if isNoRows(err) {
			return UserResponse{}, apperr.NotFound("user not found")
		}
		if db.IsUniqueViolation(err) {
			return UserResponse{}, apperr.Invalid("a user with that username already exists")
		}
		return UserResponse{}, err
	}
	return toResponse(u), nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("user not found")
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}
