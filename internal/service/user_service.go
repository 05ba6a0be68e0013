package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatwire/internal/domain"
	"chatwire/internal/repository"
	"chatwire/internal/storage"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when an edit targets an email with no row.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists is returned when adding a user with a taken email.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// ImagePolicy selects what an edit does when no image payload is supplied.
type ImagePolicy string

const (
	// ImagePolicyClearMissing stores NULL when the edit carries no image.
	ImagePolicyClearMissing ImagePolicy = "clear-missing"
	// ImagePolicyKeepMissing leaves the stored image untouched when the
	// edit carries no image.
	ImagePolicyKeepMissing ImagePolicy = "keep-missing"
)

// UserService describes user lifecycle operations.
type UserService interface {
	List(ctx context.Context) ([]domain.User, error)
	Add(ctx context.Context, email, password, image string) (*domain.User, error)
	Edit(ctx context.Context, oldEmail, email, password, image string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

type userService struct {
	users   repository.UserRepository
	storage storage.Service
	policy  ImagePolicy
}

func NewUserService(users repository.UserRepository, store storage.Service, policy ImagePolicy) UserService {
	if policy == "" {
		policy = ImagePolicyClearMissing
	}
	return &userService{
		users:   users,
		storage: store,
		policy:  policy,
	}
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *userService) Add(ctx context.Context, email, password, image string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
	}

	if image != "" {
		ref, err := s.uploadImage(ctx, image)
		if err != nil {
			return nil, err
		}
		user.Image = ref
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) Edit(ctx context.Context, oldEmail, email, password, image string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(oldEmail))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user.Email = email
	user.PasswordHash = string(hash)

	switch {
	case image != "":
		ref, err := s.uploadImage(ctx, image)
		if err != nil {
			return nil, err
		}
		user.Image = ref
	case s.policy == ImagePolicyClearMissing:
		user.Image = nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// uploadImage decodes a base64 image payload (optionally wrapped in a data
// URI), stores it in object storage, and returns the object URL.
func (s *userService) uploadImage(ctx context.Context, image string) (*string, error) {
	if s.storage == nil {
		return nil, errors.New("object storage is not configured")
	}

	payload := image
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	key := uuid.NewString()
	url, err := s.storage.UploadImage(ctx, key, http.DetectContentType(data), data)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	return &url, nil
}
