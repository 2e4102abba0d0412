package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/report"
	"vendormall/backend/internal/settlement"
	"vendormall/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("staff role required")
)

// ValidationError is a field-scoped input error. Path names the field, e.g.
// ["user", "email"], and renders as {"user": {"email": Message}}.
type ValidationError struct {
	Path    []string
	Message string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Path, ".") + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalid
}

func (e *ValidationError) Detail() map[string]any {
	if len(e.Path) == 0 {
		return map[string]any{"non_field_errors": e.Message}
	}
	var node any = e.Message
	for i := len(e.Path) - 1; i >= 0; i-- {
		node = map[string]any{e.Path[i]: node}
	}
	return node.(map[string]any)
}

func fieldError(message string, path ...string) error {
	return &ValidationError{Path: path, Message: message}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	settler *settlement.Settler
	reports *report.Aggregator
	log     logrus.FieldLogger
	now     func() time.Time
}

func New(repo store.Repository, settler *settlement.Settler, reports *report.Aggregator, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		repo:    repo,
		settler: settler,
		reports: reports,
		log:     logger.WithField("component", "service"),
		now:     time.Now,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireStaff(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsStaff {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID any, detail string) {
	fields := logrus.Fields{
		"action":      action,
		"entity_type": entityType,
		"entity_id":   entityID,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		fields["actor_id"] = actor.UserID
		fields["actor_staff"] = actor.IsStaff
	}
	entry := s.log.WithFields(fields)
	if detail != "" {
		entry = entry.WithField("detail", detail)
	}
	entry.Info("audit")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
