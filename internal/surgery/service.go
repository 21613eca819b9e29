package surgery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	redisclient "github.com/surgiplan/surgery-scheduling/internal/redis"
)

// FeedPublisher delivers encoded deltas to whoever mirrors the collection.
type FeedPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	feed   FeedPublisher
}

func NewService(repo Repository, locker redisclient.Locker, feed FeedPublisher) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		feed:   feed,
	}
}

// CreateSurgery validates and stores a new surgery request. Fees are
// reconciled against the team before the write so the record never carries
// an entry for a non-member.
func (s *Service) CreateSurgery(ctx context.Context, in *Surgery) (*Surgery, error) {
	if in.AuthStatus == "" {
		in.AuthStatus = AuthPending
	}
	if in.Status == "" {
		in.Status = StatusRequested
	}
	in.ReconcileFees()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	created, err := s.repo.UpsertSurgery(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create surgery: %w", err)
	}

	s.publish(ctx, Delta{Op: OpInsert, ID: created.ID, Surgery: created})
	return created, nil
}

// UpdateSurgery is the full-form edit: create-or-replace keyed by id.
func (s *Service) UpdateSurgery(ctx context.Context, in *Surgery) (*Surgery, error) {
	in.ReconcileFees()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	op := OpUpdate
	if _, err := s.repo.GetSurgeryByID(ctx, in.ID); err != nil {
		if !errors.Is(err, ErrSurgeryNotFound) {
			return nil, fmt.Errorf("load surgery: %w", err)
		}
		op = OpInsert
	}

	var updated *Surgery
	err := s.locker.WithSurgeryLock(ctx, in.ID, func(lockCtx context.Context) error {
		var err error
		updated, err = s.repo.UpsertSurgery(lockCtx, in)
		if err != nil {
			return fmt.Errorf("update surgery: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Delta{Op: op, ID: updated.ID, Surgery: updated})
	return updated, nil
}

// Authorize moves the authorization axis; the lifecycle axis is untouched.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return s.setAuthStatus(ctx, id, AuthApproved)
}

func (s *Service) Deny(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return s.setAuthStatus(ctx, id, AuthDenied)
}

func (s *Service) setAuthStatus(ctx context.Context, id uuid.UUID, to AuthStatus) (*Surgery, error) {
	return s.mutate(ctx, id, func(sg *Surgery) error {
		sg.AuthStatus = to
		return nil
	})
}

// Schedule gives the surgery a date and moves it to the scheduled state.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID, at time.Time) (*Surgery, error) {
	return s.mutate(ctx, id, func(sg *Surgery) error {
		if sg.Status == StatusCompleted || sg.Status == StatusCancelled {
			return ErrInvalidStatusTransition
		}
		sg.Status = StatusScheduled
		sg.ScheduledAt = &at
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return s.mutate(ctx, id, func(sg *Surgery) error {
		if sg.Status != StatusScheduled {
			return ErrInvalidStatusTransition
		}
		sg.Status = StatusCompleted
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return s.mutate(ctx, id, func(sg *Surgery) error {
		if sg.Status == StatusCompleted || sg.Status == StatusCancelled {
			return ErrInvalidStatusTransition
		}
		sg.Status = StatusCancelled
		return nil
	})
}

// Reschedule is the drag-and-drop write path: it changes the calendar date
// of an already dated surgery and keeps the clock time. A lookup miss is a
// no-op, not an error, so a stale drag on a deleted record cannot corrupt
// anything. Repeating the call with the same target yields the same
// timestamp.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, target time.Time) (*Surgery, error) {
	current, err := s.repo.GetSurgeryByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSurgeryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load surgery: %w", err)
	}
	if current.ScheduledAt == nil {
		return nil, ErrNotScheduled
	}

	updated, err := s.mutate(ctx, id, func(sg *Surgery) error {
		if sg.ScheduledAt == nil {
			return ErrNotScheduled
		}
		moved := RescheduleTime(*sg.ScheduledAt, target)
		sg.ScheduledAt = &moved
		return nil
	})
	if errors.Is(err, ErrSurgeryNotFound) {
		// Deleted between the check and the locked write: still a no-op.
		return nil, nil
	}
	return updated, err
}

type AttachmentKind string

const (
	AttachmentPre  AttachmentKind = "pre"
	AttachmentPost AttachmentKind = "post"
)

var ErrInvalidAttachmentKind = errors.New("attachment kind must be pre or post")

// AttachFile records an uploaded artifact reference on the surgery.
func (s *Service) AttachFile(ctx context.Context, id uuid.UUID, kind AttachmentKind, ref string) (*Surgery, error) {
	switch kind {
	case AttachmentPre, AttachmentPost:
	default:
		return nil, ErrInvalidAttachmentKind
	}
	return s.mutate(ctx, id, func(sg *Surgery) error {
		if kind == AttachmentPre {
			sg.PreAttachment = ref
		} else {
			sg.PostAttachment = ref
		}
		return nil
	})
}

func (s *Service) DeleteSurgery(ctx context.Context, id uuid.UUID) error {
	err := s.locker.WithSurgeryLock(ctx, id, func(lockCtx context.Context) error {
		return s.repo.DeleteSurgery(lockCtx, id)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Delta{Op: OpDelete, ID: id})
	return nil
}

// mutate runs a read-modify-write for one surgery inside its lock, then
// publishes the update delta.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, change func(*Surgery) error) (*Surgery, error) {
	var updated *Surgery

	err := s.locker.WithSurgeryLock(ctx, id, func(lockCtx context.Context) error {
		current, err := s.repo.GetSurgeryByID(lockCtx, id)
		if err != nil {
			return fmt.Errorf("load surgery: %w", err)
		}

		if err := change(current); err != nil {
			return err
		}
		current.ReconcileFees()
		if err := current.Validate(); err != nil {
			return err
		}

		updated, err = s.repo.UpsertSurgery(lockCtx, current)
		if err != nil {
			return fmt.Errorf("store surgery: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Delta{Op: OpUpdate, ID: updated.ID, Surgery: updated})
	return updated, nil
}

// publish is best effort: the database is the source of truth and a missed
// delta is repaired by the next full reload, so a feed failure must not
// fail an acknowledged write.
func (s *Service) publish(ctx context.Context, d Delta) {
	if s.feed == nil {
		return
	}
	payload, err := EncodeDelta(d)
	if err != nil {
		log.Error().Err(err).Str("op", string(d.Op)).Stringer("id", d.ID).Msg("encode delta")
		return
	}
	if err := s.feed.Publish(ctx, payload); err != nil {
		log.Warn().Err(err).Str("op", string(d.Op)).Stringer("id", d.ID).Msg("publish delta")
	}
}

// Reads pass straight through to the repository; callers that need the
// whole collection (calendar, reports) normally read the mirror instead.

func (s *Service) GetSurgery(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	sg, err := s.repo.GetSurgeryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sg, nil
}

func (s *Service) ListSurgeries(ctx context.Context) ([]Surgery, error) {
	return s.repo.ListSurgeries(ctx)
}
