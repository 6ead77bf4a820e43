// Package sqlite persists a rack plan in a SQLite database file. It
// implements core.Repository with the same semantics as the in-memory kb
// package, so the engine runs unchanged against either.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/signalsfoundry/rackplan/core"
	"github.com/signalsfoundry/rackplan/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS racks (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	total_units INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS devices (
	id          TEXT PRIMARY KEY,
	rack_id     TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL,
	unit_start  INTEGER NOT NULL,
	unit_size   INTEGER NOT NULL,
	eth_ports   INTEGER NOT NULL DEFAULT 0,
	fiber_ports INTEGER NOT NULL DEFAULT 0,
	port_names  TEXT,
	details     TEXT
);
CREATE INDEX IF NOT EXISTS devices_rack ON devices(rack_id);
CREATE TABLE IF NOT EXISTS links (
	id          TEXT PRIMARY KEY,
	from_device TEXT NOT NULL,
	from_kind   TEXT NOT NULL,
	from_index  INTEGER NOT NULL,
	from_side   TEXT NOT NULL DEFAULT '',
	to_device   TEXT NOT NULL,
	to_kind     TEXT NOT NULL,
	to_index    INTEGER NOT NULL,
	to_side     TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	speed       TEXT NOT NULL DEFAULT '',
	color       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);`

const (
	deviceColumns = `id, rack_id, name, device_type, unit_start, unit_size, eth_ports, fiber_ports, port_names, details`
	linkColumns   = `id, from_device, from_kind, from_index, from_side, to_device, to_kind, to_index, to_side, kind, speed, color, created_at`
)

// PlanMetricsRecorder receives entity counts after every write.
type PlanMetricsRecorder interface {
	SetPlanCounts(racks, devices, links int)
}

// Option customises Open.
type Option func(*Store)

// WithMetricsRecorder attaches a recorder for entity counts.
func WithMetricsRecorder(m PlanMetricsRecorder) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is a SQLite-backed plan repository.
type Store struct {
	db      *sql.DB
	metrics PlanMetricsRecorder
}

var _ core.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// one connection serialises writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.publishCounts()
	return s, nil
}

// publishCounts reports table sizes to the metrics recorder, if any.
func (s *Store) publishCounts() {
	if s.metrics == nil {
		return
	}
	var racks, devices, links int
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM racks),
		(SELECT COUNT(*) FROM devices),
		(SELECT COUNT(*) FROM links)`).Scan(&racks, &devices, &links)
	if err == nil {
		s.metrics.SetPlanCounts(racks, devices, links)
	}
}

// wrote publishes counts after a successful write and passes err through.
func (s *Store) wrote(err error) error {
	if err == nil {
		s.publishCounts()
	}
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isPrimaryKeyViolation reports whether err is a duplicate-key insert.
func isPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.publishCounts()
	return nil
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

//
// ---------- Racks ----------
//

// CreateRack inserts a new rack.
func (s *Store) CreateRack(r *model.Rack) error {
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rack id is required", core.ErrInvalidRack)
	}
	if r.TotalUnits < 1 {
		return fmt.Errorf("%w: rack %q capacity %d < 1", core.ErrInvalidRack, r.ID, r.TotalUnits)
	}
	_, err := s.db.Exec("INSERT INTO racks (id, name, total_units) VALUES (?, ?, ?)", r.ID, r.Name, r.TotalUnits)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %q", core.ErrRackExists, r.ID)
	}
	return s.wrote(err)
}

// EnsureRack returns rack id, creating it with the default capacity first
// when missing.
func (s *Store) EnsureRack(id string) (*model.Rack, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: rack id is required", core.ErrInvalidRack)
	}
	_, err := s.db.Exec("INSERT OR IGNORE INTO racks (id, total_units) VALUES (?, ?)", id, model.DefaultRackUnits)
	if err := s.wrote(err); err != nil {
		return nil, err
	}
	return s.GetRack(id)
}

// GetRack retrieves a rack by ID.
func (s *Store) GetRack(id string) (*model.Rack, error) {
	return getRack(s.db, id)
}

func getRack(q querier, id string) (*model.Rack, error) {
	var r model.Rack
	err := q.QueryRow("SELECT id, name, total_units FROM racks WHERE id = ?", id).
		Scan(&r.ID, &r.Name, &r.TotalUnits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrRackNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRacks returns every rack ordered by ID.
func (s *Store) ListRacks() ([]*model.Rack, error) {
	rows, err := s.db.Query("SELECT id, name, total_units FROM racks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var racks []*model.Rack
	for rows.Next() {
		var r model.Rack
		if err := rows.Scan(&r.ID, &r.Name, &r.TotalUnits); err != nil {
			return nil, err
		}
		racks = append(racks, &r)
	}
	return racks, rows.Err()
}

// UpdateRack overwrites a rack. Devices must still fit the new capacity.
func (s *Store) UpdateRack(r *model.Rack) error {
	if r == nil || r.TotalUnits < 1 {
		return fmt.Errorf("%w: capacity must be at least 1U", core.ErrInvalidRack)
	}
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := getRack(tx, r.ID); err != nil {
			return err
		}
		var top sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(unit_start + unit_size - 1) FROM devices WHERE rack_id = ?", r.ID).Scan(&top); err != nil {
			return err
		}
		if top.Valid && int(top.Int64) > r.TotalUnits {
			return fmt.Errorf("%w: a device ends at U%d beyond %dU", core.ErrPlacementUnavailable, top.Int64, r.TotalUnits)
		}
		_, err := tx.Exec("UPDATE racks SET name = ?, total_units = ? WHERE id = ?", r.Name, r.TotalUnits, r.ID)
		return err
	})
}

// DeleteRack removes a rack, its devices and every link touching them.
func (s *Store) DeleteRack(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := getRack(tx, id); err != nil {
			return err
		}
		const sub = "SELECT id FROM devices WHERE rack_id = ?"
		if _, err := tx.Exec("DELETE FROM links WHERE from_device IN ("+sub+") OR to_device IN ("+sub+")", id, id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM devices WHERE rack_id = ?", id); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM racks WHERE id = ?", id)
		return err
	})
}

//
// ---------- Devices ----------
//

// AddDevice inserts a device, creating its rack on first reference. The
// footprint must be inside the rack and free.
func (s *Store) AddDevice(d *model.Device) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidDevice, err)
	}
	names, details, err := encodeDeviceExtras(d)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		if d.RackID != "" {
			if _, err := tx.Exec("INSERT OR IGNORE INTO racks (id, total_units) VALUES (?, ?)", d.RackID, model.DefaultRackUnits); err != nil {
				return err
			}
		}
		if err := checkFit(tx, d); err != nil {
			return err
		}
		_, err := tx.Exec("INSERT INTO devices ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			d.ID, d.RackID, d.Name, string(d.Type), d.UnitStart, d.UnitSize, d.EthPortCount, d.FiberPortCount, names, details)
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("%w: %q", core.ErrDeviceExists, d.ID)
		}
		return err
	})
}

// GetDevice retrieves a device by ID.
func (s *Store) GetDevice(id string) (*model.Device, error) {
	d, err := scanDevice(s.db.QueryRow("SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrDeviceNotFound, id)
	}
	return d, err
}

// ListDevices returns every device ordered by rack, unit, then ID.
func (s *Store) ListDevices() ([]*model.Device, error) {
	return listDevices(s.db, "SELECT "+deviceColumns+" FROM devices ORDER BY rack_id, unit_start, id")
}

// ListRackDevices returns the devices in rackID ordered by unit.
func (s *Store) ListRackDevices(rackID string) ([]*model.Device, error) {
	return listDevices(s.db, "SELECT "+deviceColumns+" FROM devices WHERE rack_id = ? ORDER BY unit_start, id", rackID)
}

func listDevices(q querier, query string, args ...any) ([]*model.Device, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateDevice overwrites a device, rechecking its footprint.
func (s *Store) UpdateDevice(d *model.Device) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidDevice, err)
	}
	names, details, err := encodeDeviceExtras(d)
	if err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		if err := checkFit(tx, d); err != nil {
			return err
		}
		res, err := tx.Exec(`UPDATE devices SET rack_id = ?, name = ?, device_type = ?, unit_start = ?, unit_size = ?,
			eth_ports = ?, fiber_ports = ?, port_names = ?, details = ? WHERE id = ?`,
			d.RackID, d.Name, string(d.Type), d.UnitStart, d.UnitSize, d.EthPortCount, d.FiberPortCount, names, details, d.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %q", core.ErrDeviceNotFound, d.ID)
		}
		return nil
	})
}

// DeleteDevice removes a device. Its links stay stored and are dropped at
// read time until a heal pass deletes them.
func (s *Store) DeleteDevice(id string) error {
	res, err := s.db.Exec("DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", core.ErrDeviceNotFound, id)
	}
	s.publishCounts()
	return nil
}

func checkFit(tx *sql.Tx, d *model.Device) error {
	rack, err := getRack(tx, d.RackID)
	if err != nil {
		return err
	}
	peers, err := listDevices(tx, "SELECT "+deviceColumns+" FROM devices WHERE rack_id = ?", d.RackID)
	if err != nil {
		return err
	}
	if !core.NewSlotAllocator(rack, peers).IsFree(d.UnitStart, d.UnitSize, d.ID) {
		return &core.PlacementError{
			RackID: d.RackID,
			Size:   d.UnitSize,
			Reason: fmt.Sprintf("U%d-U%d is occupied or outside the rack", d.UnitStart, d.UnitEnd()),
		}
	}
	return nil
}

func encodeDeviceExtras(d *model.Device) (names, details sql.NullString, err error) {
	if len(d.PortNames) > 0 {
		raw, err := json.Marshal(d.PortNames)
		if err != nil {
			return names, details, fmt.Errorf("encode port names: %w", err)
		}
		names = sql.NullString{String: string(raw), Valid: true}
	}
	if d.Details != nil {
		raw, err := json.Marshal(d.Details)
		if err != nil {
			return names, details, fmt.Errorf("encode details: %w", err)
		}
		details = sql.NullString{String: string(raw), Valid: true}
	}
	return names, details, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*model.Device, error) {
	var (
		d              model.Device
		typ            string
		names, details sql.NullString
	)
	if err := row.Scan(&d.ID, &d.RackID, &d.Name, &typ, &d.UnitStart, &d.UnitSize,
		&d.EthPortCount, &d.FiberPortCount, &names, &details); err != nil {
		return nil, err
	}
	d.Type = model.DeviceType(typ)
	if names.Valid && names.String != "" {
		if err := json.Unmarshal([]byte(names.String), &d.PortNames); err != nil {
			return nil, fmt.Errorf("device %q port names: %w", d.ID, err)
		}
	}
	if details.Valid {
		var err error
		if d.Details, err = model.DetailsFromJSON(d.Type, []byte(details.String)); err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
	}
	return &d, nil
}

//
// ---------- Links ----------
//

// AddLink stores a link. Endpoints are not checked against devices.
func (s *Store) AddLink(l *model.Link) error {
	if l == nil || strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: link id is required", core.ErrInvalidLink)
	}
	_, err := s.db.Exec("INSERT INTO links ("+linkColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID,
		l.From.DeviceID, string(l.From.Kind), l.From.Index, string(l.From.Side),
		l.To.DeviceID, string(l.To.Kind), l.To.Index, string(l.To.Side),
		string(l.Kind), string(l.Speed), l.Color, unixNano(l.CreatedAt))
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %q", core.ErrLinkExists, l.ID)
	}
	return s.wrote(err)
}

// GetLink retrieves a stored link by ID.
func (s *Store) GetLink(id string) (*model.Link, error) {
	l, err := scanLink(s.db.QueryRow("SELECT "+linkColumns+" FROM links WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", core.ErrLinkNotFound, id)
	}
	return l, err
}

// ListLinks returns every stored link ordered by creation time.
func (s *Store) ListLinks() ([]*model.Link, error) {
	rows, err := s.db.Query("SELECT " + linkColumns + " FROM links ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// DeleteLink removes a link by ID.
func (s *Store) DeleteLink(id string) error {
	res, err := s.db.Exec("DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", core.ErrLinkNotFound, id)
	}
	s.publishCounts()
	return nil
}

func scanLink(row scanner) (*model.Link, error) {
	var (
		l                          model.Link
		fromKind, fromSide, toKind string
		toSide, kind, speed        string
		created                    int64
	)
	if err := row.Scan(&l.ID,
		&l.From.DeviceID, &fromKind, &l.From.Index, &fromSide,
		&l.To.DeviceID, &toKind, &l.To.Index, &toSide,
		&kind, &speed, &l.Color, &created); err != nil {
		return nil, err
	}
	l.From.Kind, l.From.Side = model.PortKind(fromKind), model.Side(fromSide)
	l.To.Kind, l.To.Side = model.PortKind(toKind), model.Side(toSide)
	l.Kind, l.Speed = model.PortKind(kind), model.Speed(speed)
	if created != 0 {
		l.CreatedAt = time.Unix(0, created).UTC()
	}
	return &l, nil
}

// unixNano stores the zero time as 0 so it reads back as zero.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
