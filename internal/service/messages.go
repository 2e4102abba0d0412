package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

// ResolveRecipients decides who a message goes to. Staff reach exactly the
// users they name; everyone else always writes to the whole staff.
func ResolveRecipients(actor domain.Actor, requested []int64, staffIDs []int64) []int64 {
	source := requested
	if !actor.IsStaff {
		source = staffIDs
	}
	out := make([]int64, 0, len(source))
	for _, id := range source {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) StaffIDs(ctx context.Context) ([]int64, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStaffIDs(ctx)
}

func (s *Service) SendMessage(ctx context.Context, req domain.MessageCreateRequest) (domain.Message, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	recipients, err := s.recipientsFor(ctx, actor, req.RecipientIDs)
	if err != nil {
		return domain.Message{}, err
	}
	if len(recipients) == 0 {
		return domain.Message{}, fieldError("This list may not be empty.", "recipient_ids")
	}

	msg, err := s.repo.CreateMessage(ctx, domain.Message{
		SenderID:  actor.UserID,
		Subject:   req.Subject,
		Body:      req.Body,
		Timestamp: s.now().UTC(),
	}, recipients)
	if errors.Is(err, store.ErrInvalid) {
		return domain.Message{}, fieldError("One or more recipients do not exist.", "recipient_ids")
	}
	if err != nil {
		return domain.Message{}, err
	}
	s.log.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"sender_id":  actor.UserID,
		"recipients": len(recipients),
	}).Debug("message sent")
	return *msg, nil
}

// ListMessages returns every message the caller sent or received, newest first.
func (s *Service) ListMessages(ctx context.Context) ([]domain.Message, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessagesForUser(ctx, actor.UserID)
}

func (s *Service) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := s.participantMessage(ctx, actor, id)
	if err != nil {
		return domain.Message{}, err
	}
	return *msg, nil
}

// UpdateMessage edits a message and marks it read. A nil recipient list
// keeps the current recipients.
func (s *Service) UpdateMessage(ctx context.Context, id int64, req domain.MessageUpdateRequest) (domain.Message, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := s.participantMessage(ctx, actor, id)
	if err != nil {
		return domain.Message{}, err
	}

	if req.Subject != nil {
		msg.Subject = *req.Subject
	}
	if req.Body != nil {
		msg.Body = *req.Body
	}
	msg.IsRead = true

	var recipients []int64
	if req.RecipientIDs != nil {
		if recipients, err = s.recipientsFor(ctx, actor, req.RecipientIDs); err != nil {
			return domain.Message{}, err
		}
		if len(recipients) == 0 {
			return domain.Message{}, fieldError("This list may not be empty.", "recipient_ids")
		}
	}

	updated, err := s.repo.UpdateMessage(ctx, *msg, recipients)
	if errors.Is(err, store.ErrInvalid) {
		return domain.Message{}, fieldError("One or more recipients do not exist.", "recipient_ids")
	}
	if err != nil {
		return domain.Message{}, err
	}
	return *updated, nil
}

// MarkRead is idempotent.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.participantMessage(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.SetMessageRead(ctx, id)
}

func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.participantMessage(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeleteMessage(ctx, id)
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return 0, err
	}
	return s.repo.CountUnreadMessages(ctx, actor.UserID)
}

func (s *Service) AddReply(ctx context.Context, messageID int64, req domain.ReplyCreateRequest) (domain.Reply, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Reply{}, err
	}
	if _, err := s.participantMessage(ctx, actor, messageID); err != nil {
		return domain.Reply{}, err
	}
	reply, err := s.repo.CreateReply(ctx, domain.Reply{
		MessageID: messageID,
		SenderID:  actor.UserID,
		Body:      req.Body,
		DateSent:  s.now().UTC(),
	})
	if err != nil {
		return domain.Reply{}, err
	}
	return *reply, nil
}

func (s *Service) MarkReplyRead(ctx context.Context, messageID int64, replyID int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if _, err := s.participantMessage(ctx, actor, messageID); err != nil {
		return err
	}
	return s.repo.SetReplyRead(ctx, messageID, replyID)
}

func (s *Service) recipientsFor(ctx context.Context, actor domain.Actor, requested []int64) ([]int64, error) {
	var staff []int64
	if !actor.IsStaff {
		var err error
		if staff, err = s.repo.ListStaffIDs(ctx); err != nil {
			return nil, fmt.Errorf("list staff: %w", err)
		}
	}
	return ResolveRecipients(actor, requested, staff), nil
}

// participantMessage hides messages the caller neither sent nor received.
func (s *Service) participantMessage(ctx context.Context, actor domain.Actor, id int64) (*domain.Message, error) {
	msg, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == actor.UserID {
		return msg, nil
	}
	for _, r := range msg.Recipients {
		if r.ID == actor.UserID {
			return msg, nil
		}
	}
	return nil, store.ErrNotFound
}
