package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/persona-gateway/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, thread_id, character, created_at, updated_at
		FROM users
		WHERE id = $1`

	var (
		user      models.User
		threadID  sql.NullString
		character []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &threadID, &character, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.User{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %v", err)
	}

	user.ThreadID = threadID.String
	if len(character) > 0 {
		var profile models.CharacterProfile
		if err := json.Unmarshal(character, &profile); err != nil {
			return nil, fmt.Errorf("error decoding character profile: %v", err)
		}
		user.Character = &profile
	}

	return &user, nil
}

// AssignThread inserts the thread handle only when the user has none
// yet; concurrent callers all observe the handle that was persisted
// first.
func (s *PostgresStorage) AssignThread(ctx context.Context, userID, threadID string) (string, error) {
	query := `
		INSERT INTO users (id, thread_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET thread_id = COALESCE(users.thread_id, EXCLUDED.thread_id),
		    updated_at = now()
		RETURNING thread_id`

	var winner string
	if err := s.db.QueryRowContext(ctx, query, userID, threadID).Scan(&winner); err != nil {
		return "", fmt.Errorf("error assigning thread: %v", err)
	}
	return winner, nil
}

func (s *PostgresStorage) SaveCharacter(ctx context.Context, userID string, profile *models.CharacterProfile) error {
	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("error encoding character profile: %v", err)
	}

	query := `
		INSERT INTO users (id, character)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET character = EXCLUDED.character, updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, userID, encoded); err != nil {
		return fmt.Errorf("error saving character profile: %v", err)
	}
	return nil
}

func (s *PostgresStorage) CreateAssistant(ctx context.Context, a *models.Assistant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %v", err)
	}
	defer tx.Rollback()

	// Under READ COMMITTED the count alone is not enough: two racing
	// first registrations would each see zero. The advisory lock
	// serializes registrations per owner until commit, and the unique
	// partial index on (user_id) WHERE is_default backs the invariant
	// at the schema level.
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('assistants:' || $1))`, a.UserID); err != nil {
		return fmt.Errorf("error locking owner registration: %v", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM assistants WHERE user_id = $1`, a.UserID).Scan(&count); err != nil {
		return fmt.Errorf("error counting assistants: %v", err)
	}
	a.IsDefault = count == 0

	query := `
		INSERT INTO assistants (user_id, assistant_id, name, description, instructions, is_default, vector_store_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = tx.QueryRowContext(ctx, query,
		a.UserID, a.AssistantID, a.Name, a.Description, a.Instructions, a.IsDefault, a.VectorStoreID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating assistant: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing assistant: %v", err)
	}
	return nil
}

const assistantColumns = `id, user_id, assistant_id, name, description, instructions, is_default, vector_store_id, created_at`

func (s *PostgresStorage) scanAssistant(row *sql.Row) (*models.Assistant, error) {
	var a models.Assistant
	err := row.Scan(
		&a.ID, &a.UserID, &a.AssistantID, &a.Name, &a.Description,
		&a.Instructions, &a.IsDefault, &a.VectorStoreID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning assistant: %v", err)
	}
	return &a, nil
}

func (s *PostgresStorage) GetAssistantByName(ctx context.Context, userID, name string) (*models.Assistant, error) {
	query := `
		SELECT ` + assistantColumns + `
		FROM assistants
		WHERE user_id = $1 AND lower(name) = lower($2)
		LIMIT 1`
	return s.scanAssistant(s.db.QueryRowContext(ctx, query, userID, name))
}

func (s *PostgresStorage) GetDefaultAssistant(ctx context.Context, userID string) (*models.Assistant, error) {
	query := `
		SELECT ` + assistantColumns + `
		FROM assistants
		WHERE user_id = $1 AND is_default
		LIMIT 1`
	return s.scanAssistant(s.db.QueryRowContext(ctx, query, userID))
}

func (s *PostgresStorage) GetAssistantByRemoteID(ctx context.Context, assistantID string) (*models.Assistant, error) {
	query := `
		SELECT ` + assistantColumns + `
		FROM assistants
		WHERE assistant_id = $1
		LIMIT 1`
	return s.scanAssistant(s.db.QueryRowContext(ctx, query, assistantID))
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, user_id, role, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.ExecContext(ctx, query, m.ID, m.UserID, m.Role, m.Content, m.CreatedAt); err != nil {
		return fmt.Errorf("error saving message: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetUserMessages(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error) {
	query := `
		SELECT id, user_id, role, message, timestamp
		FROM messages
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %v", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %v", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
