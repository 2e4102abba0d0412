package postgres

import (
	"context"
	"database/sql"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

const messageSelect = `
	SELECT m.id, m.sender_id, u.email, m.subject, m.body, m.sent_at, m.is_read
	FROM messages m
	JOIN users u ON u.id = m.sender_id`

func scanMessage(row interface{ Scan(dest ...any) error }) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.SenderID, &m.SenderEmail, &m.Subject, &m.Body, &m.Timestamp, &m.IsRead); err != nil {
		return nil, err
	}
	return &m, nil
}

func insertRecipients(ctx context.Context, q queryer, messageID int64, recipientIDs []int64) error {
	for _, id := range recipientIDs {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO message_recipients (message_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, messageID, id); err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error) {
	var created *domain.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var sentAt any
		if !msg.Timestamp.IsZero() {
			sentAt = msg.Timestamp
		}
		var id int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO messages (sender_id, subject, body, sent_at, is_read)
			VALUES ($1, $2, $3, COALESCE($4, now()), false)
			RETURNING id
		`, msg.SenderID, msg.Subject, msg.Body, sentAt).Scan(&id); err != nil {
			return mapWriteError(err)
		}
		if err := insertRecipients(ctx, tx, id, recipientIDs); err != nil {
			return err
		}
		var err error
		created, err = s.loadMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) loadMessage(ctx context.Context, q queryer, id int64) (*domain.Message, error) {
	msg, err := scanMessage(q.QueryRowContext(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	msgs := []domain.Message{*msg}
	if err := s.attachThreads(ctx, q, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

// attachThreads fills recipients and replies for a batch of messages.
func (s *Store) attachThreads(ctx context.Context, q queryer, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, len(msgs))
	index := make(map[int64]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		index[msgs[i].ID] = i
		msgs[i].Recipients = []domain.UserRef{}
		msgs[i].Replies = []domain.Reply{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT r.message_id, u.id, u.name, u.email
		FROM message_recipients r
		JOIN users u ON u.id = r.user_id
		WHERE r.message_id = ANY($1)
		ORDER BY r.message_id, u.id
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var messageID int64
		var ref domain.UserRef
		if err := rows.Scan(&messageID, &ref.ID, &ref.Name, &ref.Email); err != nil {
			rows.Close()
			return err
		}
		i := index[messageID]
		msgs[i].Recipients = append(msgs[i].Recipients, ref)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT id, message_id, sender_id, body, sent_at, read
		FROM replies
		WHERE message_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.Reply
		if err := rows.Scan(&r.ID, &r.MessageID, &r.SenderID, &r.Body, &r.DateSent, &r.Read); err != nil {
			return err
		}
		i := index[r.MessageID]
		msgs[i].Replies = append(msgs[i].Replies, r)
	}
	return rows.Err()
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	return s.loadMessage(ctx, s.db, id)
}

// ListMessagesForUser returns the union of sent and received messages, newest first.
func (s *Store) ListMessagesForUser(ctx context.Context, userID int64) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE m.sender_id = $1
		   OR EXISTS (SELECT 1 FROM message_recipients r WHERE r.message_id = m.id AND r.user_id = $1)
		ORDER BY m.sent_at DESC, m.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, 16)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.attachThreads(ctx, s.db, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessage replaces the recipient set only when recipientIDs is non-nil.
func (s *Store) UpdateMessage(ctx context.Context, msg domain.Message, recipientIDs []int64) (*domain.Message, error) {
	var updated *domain.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE messages SET subject = $2, body = $3, is_read = $4 WHERE id = $1
		`, msg.ID, msg.Subject, msg.Body, msg.IsRead)
		if err != nil {
			return err
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		if recipientIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM message_recipients WHERE message_id = $1`, msg.ID); err != nil {
				return err
			}
			if err := insertRecipients(ctx, tx, msg.ID, recipientIDs); err != nil {
				return err
			}
		}
		updated, err = s.loadMessage(ctx, tx, msg.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) SetMessageRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) CountUnreadMessages(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN message_recipients r ON r.message_id = m.id
		WHERE r.user_id = $1 AND NOT m.is_read
	`, userID).Scan(&count)
	return count, err
}

func (s *Store) CreateReply(ctx context.Context, reply domain.Reply) (*domain.Reply, error) {
	var sentAt any
	if !reply.DateSent.IsZero() {
		sentAt = reply.DateSent
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO replies (message_id, sender_id, body, sent_at, read)
		VALUES ($1, $2, $3, COALESCE($4, now()), false)
		RETURNING id, sent_at
	`, reply.MessageID, reply.SenderID, reply.Body, sentAt).Scan(&reply.ID, &reply.DateSent)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	reply.Read = false
	return &reply, nil
}

func (s *Store) SetReplyRead(ctx context.Context, messageID int64, replyID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE replies SET read = true WHERE id = $1 AND message_id = $2`, replyID, messageID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
