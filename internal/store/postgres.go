package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	host_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS participants (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	joined_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS participants_room_id_idx ON participants(room_id);
`

// Postgres is the production Store, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool for databaseURL, verifies connectivity and
// ensures the schema exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) CreateRoom(ctx context.Context, name, userName string) (Room, Participant, error) {
	now := time.Now().UTC()
	p := Participant{
		UserID:      uuid.NewString(),
		DisplayName: userName,
		JoinedAt:    now,
	}
	room := Room{
		ID:         uuid.NewString(),
		Name:       name,
		HostUserID: p.UserID,
		CreatedAt:  now,
	}
	p.RoomID = room.ID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Room{}, Participant{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO rooms (id, name, host_id, created_at) VALUES ($1, $2, $3, $4)`,
		room.ID, room.Name, room.HostUserID, room.CreatedAt,
	); err != nil {
		return Room{}, Participant{}, fmt.Errorf("insert room: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (id, name, room_id, joined_at) VALUES ($1, $2, $3, $4)`,
		p.UserID, p.DisplayName, p.RoomID, p.JoinedAt,
	); err != nil {
		return Room{}, Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Room{}, Participant{}, fmt.Errorf("commit: %w", err)
	}
	return room, p, nil
}

func (s *Postgres) JoinRoom(ctx context.Context, roomID, userName string) (Room, Participant, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, Participant{}, err
	}

	p := Participant{
		UserID:      uuid.NewString(),
		DisplayName: userName,
		RoomID:      roomID,
		JoinedAt:    time.Now().UTC(),
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, name, room_id, joined_at) VALUES ($1, $2, $3, $4)`,
		p.UserID, p.DisplayName, p.RoomID, p.JoinedAt,
	); err != nil {
		return Room{}, Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return room, p, nil
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, host_id, created_at FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&room.ID, &room.Name, &room.HostUserID, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (s *Postgres) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, host_id, created_at FROM rooms ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.HostUserID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (s *Postgres) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, room_id, joined_at FROM participants WHERE room_id = $1 ORDER BY joined_at`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.RoomID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}
