package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool so tests can substitute pgxmock.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	defaultListLimit   = 50
	defaultRecentLimit = 10
	maxListLimit       = 100
)

const conversationColumns = `id, clinic_id, contact_id, channel, status, context_data, message_count, last_message_at, created_at`

const messageColumns = `id, clinic_id, conversation_id, contact_id, staff_id, direction, channel, content, status, COALESCE(external_message_id, ''), created_at`

const contactColumns = `id, clinic_id, phone, full_name, source, status, last_activity_at, created_at`

// Registry persists contacts, conversations and message turns.
type Registry struct {
	db DB
}

// NewRegistry creates a registry backed by a pgx pool.
func NewRegistry(db DB) *Registry {
	if db == nil {
		panic("contacts: pgx pool required")
	}
	return &Registry{db: db}
}

// ResolveContact returns the clinic's contact for phone, creating it on first
// contact and touching last_activity_at otherwise. A primary whatsapp channel
// row is ensured in both cases.
func (r *Registry) ResolveContact(ctx context.Context, phone string, clinicID uuid.UUID) (*Contact, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}
	if clinicID == uuid.Nil {
		return nil, ErrNoTenant
	}

	var c Contact
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (clinic_id, phone, full_name, source, status, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (clinic_id, phone) DO UPDATE
			SET last_activity_at = now(), updated_at = now()
		RETURNING `+contactColumns+`, (xmax = 0) AS inserted`,
		clinicID, normalized, placeholderName(normalized), SourceWhatsApp, ContactStatusActive,
	).Scan(&c.ID, &c.ClinicID, &c.Phone, &c.FullName, &c.Source, &c.Status, &c.LastActivityAt, &c.CreatedAt, &c.Created)
	if err != nil {
		return nil, fmt.Errorf("contacts: upsert contact: %w", err)
	}

	if _, err := r.db.Exec(ctx, `
		INSERT INTO contact_channels (contact_id, channel_type, channel_value, is_primary)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (contact_id, channel_type) DO NOTHING`,
		c.ID, ChannelWhatsApp, normalized,
	); err != nil {
		return nil, fmt.Errorf("contacts: ensure channel: %w", err)
	}
	return &c, nil
}

// GetContact loads a contact by id.
func (r *Registry) GetContact(ctx context.Context, contactID uuid.UUID) (*Contact, error) {
	var c Contact
	err := r.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, contactID).
		Scan(&c.ID, &c.ClinicID, &c.Phone, &c.FullName, &c.Source, &c.Status, &c.LastActivityAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("contacts: get contact: %w", err)
	}
	return &c, nil
}

// UpdateContactName replaces the placeholder name once the real one is known.
func (r *Registry) UpdateContactName(ctx context.Context, contactID uuid.UUID, name string) error {
	tag, err := r.db.Exec(ctx, `UPDATE contacts SET full_name = $2, updated_at = now() WHERE id = $1`, contactID, name)
	if err != nil {
		return fmt.Errorf("contacts: update name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureOpenConversation returns the single open conversation for the
// (clinic, contact, channel) triple, creating one when none exists. Racing
// creators collapse onto one row through the partial unique index.
func (r *Registry) EnsureOpenConversation(ctx context.Context, clinicID, contactID uuid.UUID, channel string) (*Conversation, error) {
	conv, err := r.touchOpenConversation(ctx, clinicID, contactID, channel)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contacts: find open conversation: %w", err)
	}

	conv, err = scanConversation(r.db.QueryRow(ctx, `
		INSERT INTO conversations (clinic_id, contact_id, channel, status, message_count, last_message_at)
		VALUES ($1, $2, $3, 'open', 0, now())
		ON CONFLICT (clinic_id, contact_id, channel) WHERE status = 'open' DO NOTHING
		RETURNING `+conversationColumns,
		clinicID, contactID, channel,
	))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contacts: create conversation: %w", err)
	}

	// Lost the insert race; the winner's row is open now.
	conv, err = r.touchOpenConversation(ctx, clinicID, contactID, channel)
	if err != nil {
		return nil, fmt.Errorf("contacts: reload open conversation: %w", err)
	}
	return conv, nil
}

func (r *Registry) touchOpenConversation(ctx context.Context, clinicID, contactID uuid.UUID, channel string) (*Conversation, error) {
	return scanConversation(r.db.QueryRow(ctx, `
		UPDATE conversations
		SET last_message_at = now(), updated_at = now()
		WHERE clinic_id = $1 AND contact_id = $2 AND channel = $3 AND status = 'open'
		RETURNING `+conversationColumns,
		clinicID, contactID, channel,
	))
}

// GetConversation loads a conversation by id.
func (r *Registry) GetConversation(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("contacts: get conversation: %w", err)
	}
	return conv, nil
}

// CloseConversation closes an open conversation with a reason.
func (r *Registry) CloseConversation(ctx context.Context, conversationID uuid.UUID, reason string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET status = 'closed', closed_at = now(), close_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'open'`,
		conversationID, reason,
	)
	if err != nil {
		return fmt.Errorf("contacts: close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns a contact's conversations, most recently active
// first. An empty status returns all of them.
func (r *Registry) ListConversations(ctx context.Context, contactID uuid.UUID, status string) ([]Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE contact_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY last_message_at DESC`,
		contactID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("contacts: list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("contacts: scan conversation: %w", err)
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// AppendMessage inserts a message and bumps the conversation counters.
func (r *Registry) AppendMessage(ctx context.Context, msg Message) (*Message, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("contacts: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (clinic_id, conversation_id, contact_id, staff_id, direction, channel, content, status, external_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		RETURNING id, created_at`,
		msg.ClinicID, msg.ConversationID, msg.ContactID, msg.StaffID, msg.Direction, msg.Channel,
		msg.Content, msg.Status, msg.ExternalMessageID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("contacts: insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, last_message_at = $2, updated_at = now()
		WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("contacts: bump conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("contacts: commit: %w", err)
	}
	return &msg, nil
}

// ListMessages pages through a conversation oldest first.
func (r *Registry) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("contacts: list messages: %w", err)
	}
	return collectMessages(rows)
}

// RecentMessages returns the last limit messages in chronological order.
func (r *Registry) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("contacts: recent messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LoadContext returns the stored dialogue context, nil when none was saved.
func (r *Registry) LoadContext(ctx context.Context, conversationID uuid.UUID) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT context_data FROM conversations WHERE id = $1`, conversationID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("contacts: load context: %w", err)
	}
	return raw, nil
}

// SetContext overwrites the stored dialogue context wholesale.
func (r *Registry) SetContext(ctx context.Context, conversationID uuid.UUID, data json.RawMessage) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE conversations SET context_data = $2, updated_at = now() WHERE id = $1`,
		conversationID, []byte(data),
	)
	if err != nil {
		return fmt.Errorf("contacts: set context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FirstClinic returns the oldest clinic, or ErrNoTenant when there is none.
func (r *Registry) FirstClinic(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM clinics ORDER BY created_at ASC LIMIT 1`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNoTenant
		}
		return uuid.Nil, fmt.Errorf("contacts: first clinic: %w", err)
	}
	return id, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var raw []byte
	if err := row.Scan(&c.ID, &c.ClinicID, &c.ContactID, &c.Channel, &c.Status, &raw, &c.MessageCount, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		c.Context = raw
	}
	return &c, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ClinicID, &m.ConversationID, &m.ContactID, &m.StaffID, &m.Direction,
			&m.Channel, &m.Content, &m.Status, &m.ExternalMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("contacts: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: iterate messages: %w", err)
	}
	return out, nil
}
