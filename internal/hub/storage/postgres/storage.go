package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/users"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

type chatRow struct {
	ID          string    `db:"id"`
	Type        string    `db:"type"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UnreadCount int       `db:"unread_count"`
}

type memberRow struct {
	ChatID string `db:"chat_id"`
	chats.Member
}

type messageRow struct {
	ID           string    `db:"id"`
	ChatID       string    `db:"chat_id"`
	SenderUserID string    `db:"sender_user_id"`
	Text         string    `db:"text"`
	ReplyTo      string    `db:"reply_to"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r messageRow) message() messages.Message {
	return messages.Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		SenderID:  r.SenderUserID,
		Text:      r.Text,
		ReplyToID: r.ReplyTo,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", op, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return NewWithDB(db), nil
}

func NewWithDB(db *sqlx.DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.postgres.Migrate"

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) UpsertUser(ctx context.Context, u users.User) error {
	const op = "storage.postgres.UpsertUser"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			avatar = EXCLUDED.avatar
	`, u.ID, u.Name, u.Avatar)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) ChatsForUser(ctx context.Context, userID string) ([]chats.Chat, error) {
	const op = "storage.postgres.ChatsForUser"

	var rows []chatRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT
			c.id, c.type, c.name, c.description, c.created_at,
			(
				SELECT COUNT(*)
				FROM messages m
				WHERE m.chat_id = c.id
					AND m.sender_user_id <> cp.user_id
					AND m.created_at > COALESCE(cp.last_read_at, '-infinity'::timestamptz)
			) AS unread_count
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = $1
	`, userID); err != nil {
		return nil, fmt.Errorf("%s: select chats: %w", op, err)
	}

	out, err := s.assemble(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slices.SortFunc(out, func(a, b chats.Chat) int {
		return b.Recency().Compare(a.Recency())
	})
	return out, nil
}

func (s *Storage) Chat(ctx context.Context, chatID string) (chats.Chat, error) {
	const op = "storage.postgres.Chat"

	var row chatRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, type, name, description, created_at, 0 AS unread_count
		FROM chats
		WHERE id = $1
	`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, chats.ErrChatNotFound)
	}
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: select chat: %w", op, err)
	}

	out, err := s.assemble(ctx, []chatRow{row})
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}
	return out[0], nil
}

// assemble attaches members and the last message to chat rows.
func (s *Storage) assemble(ctx context.Context, rows []chatRow) ([]chats.Chat, error) {
	if len(rows) == 0 {
		return []chats.Chat{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	var members []memberRow
	if err := s.db.SelectContext(ctx, &members, `
		SELECT cp.chat_id, cp.user_id, cp.role, COALESCE(u.name, '') AS name
		FROM chat_participants cp
		LEFT JOIN users u ON u.id = cp.user_id
		WHERE cp.chat_id = ANY($1)
		ORDER BY cp.chat_id, cp.joined_at, cp.user_id
	`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}

	var last []messageRow
	if err := s.db.SelectContext(ctx, &last, `
		SELECT DISTINCT ON (chat_id)
			id, chat_id, sender_user_id, text, COALESCE(reply_to, '') AS reply_to, created_at
		FROM messages
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, created_at DESC, id DESC
	`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select last messages: %w", err)
	}

	membersByChat := make(map[string][]chats.Member, len(rows))
	for _, m := range members {
		membersByChat[m.ChatID] = append(membersByChat[m.ChatID], m.Member)
	}
	lastByChat := make(map[string]messages.Message, len(last))
	for _, m := range last {
		lastByChat[m.ChatID] = m.message()
	}

	out := make([]chats.Chat, 0, len(rows))
	for _, r := range rows {
		c := chats.Chat{
			ID:          r.ID,
			Type:        chats.Type(r.Type),
			Name:        r.Name,
			Description: r.Description,
			Members:     membersByChat[r.ID],
			CreatedAt:   r.CreatedAt.UTC(),
			UnreadCount: r.UnreadCount,
		}
		if lm, ok := lastByChat[r.ID]; ok {
			c.LastMessage = &lm
			c.LastMessageAt = lm.CreatedAt
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Storage) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	const op = "storage.postgres.IsMember"

	ok, err := isMember(ctx, s.db, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

func isMember(ctx context.Context, q sqlx.QueryerContext, chatID, userID string) (bool, error) {
	var row struct {
		ChatExists bool `db:"chat_exists"`
		Member     bool `db:"member"`
	}
	if err := sqlx.GetContext(ctx, q, &row, `
		SELECT
			EXISTS (SELECT 1 FROM chats WHERE id = $1) AS chat_exists,
			EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2) AS member
	`, chatID, userID); err != nil {
		return false, err
	}
	if !row.ChatExists {
		return false, chats.ErrChatNotFound
	}
	return row.Member, nil
}

func (s *Storage) Contacts(ctx context.Context, userID string) ([]string, error) {
	const op = "storage.postgres.Contacts"

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT other.user_id
		FROM chat_participants me
		JOIN chat_participants other ON other.chat_id = me.chat_id
		WHERE me.user_id = $1 AND other.user_id <> $1
		ORDER BY other.user_id
	`, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *Storage) CreateGroupChat(ctx context.Context, ownerID, name, description string, members []string) (chats.Chat, error) {
	const op = "storage.postgres.CreateGroupChat"

	if name == "" {
		return chats.Chat{}, chats.ErrGroupNameRequired
	}
	ids := uniqueMembers(ownerID, members)
	if len(ids) < 2 {
		return chats.Chat{}, chats.ErrEmptyParticipants
	}

	chatID := uuid.Must(uuid.NewV7()).String()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	if err := ensureUsers(ctx, tx, ids); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, type, name, description, created_at) VALUES ($1, $2, $3, $4, $5)
	`, chatID, chats.TypeGroup, name, description, s.now().UTC()); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: insert chat: %w", op, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_participants (chat_id, user_id, role) VALUES ($1, $2, $3)`)
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: prepare participants: %w", op, err)
	}
	defer stmt.Close()

	for i, id := range ids {
		role := chats.RoleMember
		if i == 0 {
			role = chats.RoleOwner
		}
		if _, err := stmt.ExecContext(ctx, chatID, id, role); err != nil {
			return chats.Chat{}, fmt.Errorf("%s: insert participant %s: %w", op, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	return s.Chat(ctx, chatID)
}

func (s *Storage) CreateDirectChat(ctx context.Context, userID, recipientID string) (chats.Chat, error) {
	const op = "storage.postgres.CreateDirectChat"

	if recipientID == "" || recipientID == userID {
		return chats.Chat{}, chats.ErrInvalidRecipient
	}
	key := DirectKey(userID, recipientID)

	if id, ok, err := s.directChatID(ctx, key); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	} else if ok {
		return s.Chat(ctx, id)
	}

	chatID := uuid.Must(uuid.NewV7()).String()
	err := s.insertDirectChat(ctx, chatID, key, userID, recipientID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		// lost the race against the other member creating the same chat
		id, ok, err := s.directChatID(ctx, key)
		if err != nil {
			return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			return chats.Chat{}, fmt.Errorf("%s: %w", op, chats.ErrChatNotFound)
		}
		return s.Chat(ctx, id)
	}
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.Chat(ctx, chatID)
}

func (s *Storage) directChatID(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM chats WHERE direct_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select direct chat: %w", err)
	}
	return id, true, nil
}

func (s *Storage) insertDirectChat(ctx context.Context, chatID, key, userID, recipientID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := ensureUsers(ctx, tx, []string{userID, recipientID}); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, type, direct_key, created_at) VALUES ($1, $2, $3, $4)
	`, chatID, chats.TypeDirect, key, s.now().UTC()); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_participants (chat_id, user_id, role) VALUES ($1, $2, $4), ($1, $3, $4)
	`, chatID, userID, recipientID, chats.RoleMember); err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ensureUsers creates bare rows for users that never connected so they can be
// added to chats.
func ensureUsers(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id) SELECT unnest($1::text[]) ON CONFLICT (id) DO NOTHING
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("ensure users: %w", err)
	}
	return nil
}

func (s *Storage) Messages(ctx context.Context, chatID string, limit int) ([]messages.Message, error) {
	const op = "storage.postgres.Messages"

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, chat_id, sender_user_id, text, reply_to, created_at
		FROM (
			SELECT id, chat_id, sender_user_id, text, COALESCE(reply_to, '') AS reply_to, created_at
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, chatID, limit); err != nil {
		return nil, fmt.Errorf("%s: select messages: %w", op, err)
	}

	if len(rows) == 0 {
		return []messages.Message{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	details, err := s.messageDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]messages.Message, 0, len(rows))
	for _, r := range rows {
		m := r.message()
		d := details[r.ID]
		m.Attachments = d.attachments
		m.ReadBy = d.readBy
		m.Reactions = d.reactions
		out = append(out, m)
	}
	return out, nil
}

type details struct {
	attachments []messages.Attachment
	readBy      []messages.ReadReceipt
	reactions   map[string]string
}

func (s *Storage) messageDetails(ctx context.Context, ids []string) (map[string]*details, error) {
	out := make(map[string]*details, len(ids))
	for _, id := range ids {
		out[id] = &details{}
	}

	type attachmentRow struct {
		MessageID string `db:"message_id"`
		messages.Attachment
	}
	var attachments []attachmentRow
	if err := s.selectIn(ctx, &attachments, `
		SELECT message_id, key AS file_id, content_type, filename, size
		FROM attachments
		WHERE message_id IN (?)
		ORDER BY message_id, position
	`, ids); err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}
	for _, a := range attachments {
		d := out[a.MessageID]
		d.attachments = append(d.attachments, a.Attachment)
	}

	type readRow struct {
		MessageID string `db:"message_id"`
		messages.ReadReceipt
	}
	var reads []readRow
	if err := s.selectIn(ctx, &reads, `
		SELECT message_id, user_id, read_at
		FROM message_reads
		WHERE message_id IN (?)
		ORDER BY message_id, read_at, user_id
	`, ids); err != nil {
		return nil, fmt.Errorf("select reads: %w", err)
	}
	for _, r := range reads {
		d := out[r.MessageID]
		r.ReadAt = r.ReadAt.UTC()
		d.readBy = append(d.readBy, r.ReadReceipt)
	}

	type reactionRow struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
		Reaction  string `db:"reaction"`
	}
	var reactions []reactionRow
	if err := s.selectIn(ctx, &reactions, `
		SELECT message_id, user_id, reaction
		FROM message_reactions
		WHERE message_id IN (?)
	`, ids); err != nil {
		return nil, fmt.Errorf("select reactions: %w", err)
	}
	for _, r := range reactions {
		d := out[r.MessageID]
		if d.reactions == nil {
			d.reactions = make(map[string]string)
		}
		d.reactions[r.UserID] = r.Reaction
	}

	return out, nil
}

func (s *Storage) selectIn(ctx context.Context, dest any, query string, ids []string) error {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return fmt.Errorf("sqlx.In: %w", err)
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(q), args...)
}

func (s *Storage) SaveMessage(ctx context.Context, m messages.Message) (messages.Message, error) {
	const op = "storage.postgres.SaveMessage"

	if messages.Empty(m.Text, m.Attachments) {
		return messages.Message{}, messages.ErrTextOrAttachmentsIsRequired
	}
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	m.ReadBy = nil
	m.Reactions = nil

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return messages.Message{}, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	ok, err := isMember(ctx, tx, m.ChatID, m.SenderID)
	if err != nil {
		return messages.Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return messages.Message{}, fmt.Errorf("%s: %w", op, chats.ErrNotAMember)
	}

	var replyTo *string
	if m.ReplyToID != "" {
		replyTo = &m.ReplyToID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_user_id, text, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ChatID, m.SenderID, m.Text, replyTo, m.CreatedAt); err != nil {
		return messages.Message{}, fmt.Errorf("%s: insert message: %w", op, err)
	}

	for i, att := range m.Attachments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (message_id, position, key, content_type, filename, size)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.ID, i, att.FileID, att.ContentType, att.Filename, att.Size); err != nil {
			return messages.Message{}, fmt.Errorf("%s: insert attachment: %w", op, err)
		}
	}

	if err := advanceLastRead(ctx, tx, m.ChatID, m.SenderID, m.CreatedAt); err != nil {
		return messages.Message{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return messages.Message{}, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	return m, nil
}

func (s *Storage) MarkRead(ctx context.Context, chatID, messageID, userID string, at time.Time) (bool, error) {
	const op = "storage.postgres.MarkRead"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.GetContext(ctx, &createdAt, `SELECT created_at FROM messages WHERE id = $1 AND chat_id = $2`, messageID, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, messages.ErrMessageIsNotExist)
	}
	if err != nil {
		return false, fmt.Errorf("%s: select message: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID, at)
	if err != nil {
		return false, fmt.Errorf("%s: insert read: %w", op, err)
	}
	added, _ := res.RowsAffected()

	if err := advanceLastRead(ctx, tx, chatID, userID, createdAt); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	return added == 1, nil
}

func advanceLastRead(ctx context.Context, tx *sqlx.Tx, chatID, userID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE chat_participants
		SET last_read_at = GREATEST(COALESCE(last_read_at, '-infinity'::timestamptz), $3)
		WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID, at); err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}

func (s *Storage) SetReaction(ctx context.Context, messageID, userID, reaction string) (string, map[string]string, error) {
	const op = "storage.postgres.SetReaction"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	var target struct {
		ChatID string `db:"chat_id"`
		Member bool   `db:"member"`
	}
	err = tx.GetContext(ctx, &target, `
		SELECT
			m.chat_id,
			EXISTS (
				SELECT 1 FROM chat_participants cp WHERE cp.chat_id = m.chat_id AND cp.user_id = $2
			) AS member
		FROM messages m
		WHERE m.id = $1
	`, messageID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%s: %w", op, messages.ErrMessageIsNotExist)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: select message: %w", op, err)
	}
	if !target.Member {
		return "", nil, fmt.Errorf("%s: %w", op, chats.ErrNotAMember)
	}

	if reaction == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`, messageID, userID)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, user_id, reaction) VALUES ($1, $2, $3)
			ON CONFLICT (message_id, user_id) DO UPDATE SET reaction = EXCLUDED.reaction
		`, messageID, userID, reaction)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: write reaction: %w", op, err)
	}

	var rows []struct {
		UserID   string `db:"user_id"`
		Reaction string `db:"reaction"`
	}
	if err := tx.SelectContext(ctx, &rows, `
		SELECT user_id, reaction FROM message_reactions WHERE message_id = $1
	`, messageID); err != nil {
		return "", nil, fmt.Errorf("%s: select reactions: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	reactions := make(map[string]string, len(rows))
	for _, r := range rows {
		reactions[r.UserID] = r.Reaction
	}
	return target.ChatID, reactions, nil
}

// DirectKey identifies the direct chat of a pair regardless of order.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func uniqueMembers(ownerID string, members []string) []string {
	out := []string{ownerID}
	for _, id := range members {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
