package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/countryauth/internal/domain/user"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
)

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type TokenIssuer interface {
	Issue(userID string, role user.Role) (string, error)
}

// Recorder receives one outcome per operation.
type Recorder interface {
	ObserveAccount(op, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAccount(string, string) {}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	Token string    `json:"token"`
	User  user.View `json:"user"`
}

// fallbackDummyHash is a well-formed cost 10 bcrypt hash, used when the
// hasher cannot produce the dummy at startup.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type Service struct {
	users    user.Store
	hasher   PasswordHasher
	tokens   TokenIssuer
	recorder Recorder

	// compared against when the email is unknown, so a miss costs the same
	// bcrypt work as a wrong password
	dummyHash string
}

func NewService(users user.Store, hasher PasswordHasher, tokens TokenIssuer, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	dummy, err := hasher.Hash("countryauth-unknown-account")
	if err != nil || dummy == "" {
		dummy = fallbackDummyHash
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		recorder:  recorder,
		dummyHash: dummy,
	}
}

var tracer = otel.Tracer("github.com/geocoder89/countryauth/internal/account")

// finish closes the span and records the outcome; it returns err unchanged.
func (s *Service) finish(op string, span trace.Span, err error) error {
	result := resultOf(err)
	s.recorder.ObserveAccount(op, result)

	if result == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	span.End()

	return err
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRole):
		return "invalid"
	default:
		return "error"
	}
}

// Register creates a user with role user and returns a token for it. The
// caller can never choose the role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (res AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "account.Register")
	defer func() { err = s.finish("register", span, err) }()

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("account: register: hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return AuthResult{}, ErrDuplicateEmail
		}
		return AuthResult{}, fmt.Errorf("account: register: create user: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))

	return s.issue(u, "register")
}

// Login never says which of email or password was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (res AuthResult, err error) {
	ctx, span := tracer.Start(ctx, "account.Login")
	defer func() { err = s.finish("login", span, err) }()

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("account: login: lookup user: %w", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	span.SetAttributes(attribute.String("user.id", u.ID))

	return s.issue(u, "login")
}

func (s *Service) issue(u user.User, op string) (AuthResult, error) {
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("account: %s: issue token: %w", op, err)
	}

	return AuthResult{Token: token, User: u.View()}, nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (v user.View, err error) {
	ctx, span := tracer.Start(ctx, "account.GetProfile")
	defer func() { err = s.finish("get_profile", span, err) }()

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return user.View{}, notFoundOr(err, "get profile")
	}

	return u.View(), nil
}

func (s *Service) ListUsers(ctx context.Context, page user.Page) (out []user.View, err error) {
	ctx, span := tracer.Start(ctx, "account.ListUsers")
	defer func() { err = s.finish("list_users", span, err) }()

	users, err := s.users.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("account: list users: %w", err)
	}

	out = make([]user.View, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}

	return out, nil
}

// UpdateUser applies only the non-nil fields. The result never carries the
// password hash.
func (s *Service) UpdateUser(ctx context.Context, id string, fields user.UpdateFields) (v user.View, err error) {
	ctx, span := tracer.Start(ctx, "account.UpdateUser")
	defer func() { err = s.finish("update_user", span, err) }()

	span.SetAttributes(attribute.String("user.id", id))

	if fields.Role != nil && !fields.Role.Valid() {
		return user.View{}, ErrInvalidRole
	}

	var u user.User

	if fields.Empty() {
		u, err = s.users.GetByID(ctx, id)
	} else {
		u, err = s.users.Update(ctx, id, fields)
	}

	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.View{}, ErrDuplicateEmail
		}
		return user.View{}, notFoundOr(err, "update user")
	}

	return u.View(), nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "account.DeleteUser")
	defer func() { err = s.finish("delete_user", span, err) }()

	span.SetAttributes(attribute.String("user.id", id))

	if err := s.users.Delete(ctx, id); err != nil {
		return notFoundOr(err, "delete user")
	}

	return nil
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, user.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("account: %s: %w", op, err)
}
