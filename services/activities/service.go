package activities

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"activityaudit/services/audit"
)

// Recorder receives audit events for successful changes. *audit.Writer
// satisfies it.
type Recorder interface {
	RecordBestEffort(ctx context.Context, ev audit.Event)
}

// Service implements signup and unregistration against the activity catalogue.
type Service struct {
	db       *gorm.DB
	recorder Recorder
	logger   zerolog.Logger
}

// NewService returns a Service. recorder may be nil, in which case nothing
// is audited.
func NewService(db *gorm.DB, recorder Recorder, logger zerolog.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	return &Service{
		db:       db,
		recorder: recorder,
		logger:   logger.With().Str("component", "activities").Logger(),
	}, nil
}

// List returns every activity keyed by name.
func (s *Service) List(ctx context.Context) (map[string]View, error) {
	var acts []Activity
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("id ASC").
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	out := make(map[string]View, len(acts))
	for _, a := range acts {
		out[a.Name] = a.view()
	}
	return out, nil
}

// Signup adds email to the named activity. ip is the caller address recorded
// in the audit trail.
func (s *Service) Signup(ctx context.Context, name, email, ip string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		act, err := findActivity(tx, name, true)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&Participant{}).
			Where("activity_id = ? AND email = ?", act.ID, email).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check participant: %w", err)
		}
		if existing > 0 {
			return ErrAlreadySignedUp
		}

		var current int64
		if err := tx.Model(&Participant{}).Where("activity_id = ?", act.ID).Count(&current).Error; err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if current >= int64(act.MaxParticipants) {
			return ErrActivityFull
		}

		if err := tx.Create(&Participant{Email: email, ActivityID: act.ID}).Error; err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("activity", name).Str("email", email).Msg("student signed up")
	s.record(ctx, audit.Event{
		Action:       audit.ActionSignup,
		UserEmail:    email,
		ActivityName: name,
		Details:      fmt.Sprintf("Signed up %s for %s", email, name),
		IPAddress:    ip,
	})
	return nil
}

// Unregister removes email from the named activity.
func (s *Service) Unregister(ctx context.Context, name, email, ip string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidEmail
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		act, err := findActivity(tx, name, false)
		if err != nil {
			return err
		}

		res := tx.Where("activity_id = ? AND email = ?", act.ID, email).Delete(&Participant{})
		if res.Error != nil {
			return fmt.Errorf("remove participant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotSignedUp
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("activity", name).Str("email", email).Msg("student unregistered")
	s.record(ctx, audit.Event{
		Action:       audit.ActionUnregister,
		UserEmail:    email,
		ActivityName: name,
		Details:      fmt.Sprintf("Unregistered %s from %s", email, name),
		IPAddress:    ip,
	})
	return nil
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordBestEffort(ctx, ev)
}

// findActivity loads the activity by name. With lock set the row is locked
// for the rest of the transaction where the database supports it.
func findActivity(tx *gorm.DB, name string, lock bool) (Activity, error) {
	q := tx.Where("name = ?", name)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var act Activity
	err := q.First(&act).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Activity{}, ErrActivityNotFound
	case err != nil:
		return Activity{}, fmt.Errorf("find activity: %w", err)
	}
	return act, nil
}
