package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// Repository persists the room and device graph.
// This abstraction allows the snapshot store to be swapped out in tests.
type Repository interface {
	// SaveRooms replaces the stored graph with rooms.
	SaveRooms(ctx context.Context, rooms []RoomSpec) error

	// LoadRooms returns the stored graph in saved order. Devices are
	// decoded but not set up.
	LoadRooms(ctx context.Context) ([]RoomSpec, error)
}

// SQLiteRepository implements Repository using the rooms and devices tables.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// SaveRooms replaces every stored room and device in one transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - rooms: Full graph, as returned by Registry.Specs
//
// Returns:
//   - error: nil on success; encoding or database error otherwise. On error
//     the previous snapshot is left untouched.
func (r *SQLiteRepository) SaveRooms(ctx context.Context, rooms []RoomSpec) error {
	updatedAt := r.now().UTC().Format(time.RFC3339)

	return database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
			return fmt.Errorf("clearing devices: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM rooms"); err != nil {
			return fmt.Errorf("clearing rooms: %w", err)
		}

		for i, room := range rooms {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO rooms (name, sort_order) VALUES (?, ?)", room.Name, i); err != nil {
				return fmt.Errorf("inserting room %s: %w", room.Name, err)
			}
			for _, env := range room.Devices {
				definition, err := json.Marshal(env)
				if err != nil {
					return err
				}
				_, err = tx.ExecContext(ctx,
					"INSERT INTO devices (room, name, kind, definition, updated_at) VALUES (?, ?, ?, ?, ?)",
					room.Name, env.Device.Common().Name, env.Device.Kind(), string(definition), updatedAt)
				if err != nil {
					return fmt.Errorf("inserting device %s.%s: %w", room.Name, env.Device.Common().Name, err)
				}
			}
		}
		return nil
	})
}

// LoadRooms reads the stored graph.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - []RoomSpec: Rooms in saved order, each with its devices in saved order
//   - error: Database error, or a decoding error naming the bad device
func (r *SQLiteRepository) LoadRooms(ctx context.Context) ([]RoomSpec, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM rooms ORDER BY sort_order, name")
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []RoomSpec
	index := make(map[string]int)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		index[name] = len(rooms)
		rooms = append(rooms, RoomSpec{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}

	deviceRows, err := r.db.QueryContext(ctx, "SELECT room, name, definition FROM devices ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer deviceRows.Close()

	for deviceRows.Next() {
		var room, name, definition string
		if err := deviceRows.Scan(&room, &name, &definition); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		i, ok := index[room]
		if !ok {
			return nil, fmt.Errorf("%w: %s (device %s)", ErrRoomNotFound, room, name)
		}
		d, err := DecodeDevice([]byte(definition))
		if err != nil {
			return nil, fmt.Errorf("decoding device %s.%s: %w", room, name, err)
		}
		rooms[i].Devices = append(rooms[i].Devices, Envelope{Device: d})
	}
	if err := deviceRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return rooms, nil
}
