package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MariaBuildRepo реализует BuildRepo для MariaDB/MySQL (таблица mesh_builds).
type MariaBuildRepo struct {
	db *sql.DB
}

// NewMariaBuildRepo подключается и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname)
func NewMariaBuildRepo(dsn string) (*MariaBuildRepo, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("некорректный DSN MariaDB: %w", err)
	}
	// finished_at читается в time.Time
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaBuildRepo{db: db}
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

func (r *MariaBuildRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS mesh_builds (
			build_id    VARCHAR(64) PRIMARY KEY,
			chunks      INT         NOT NULL,
			surfaces    INT         NOT NULL,
			faces       INT         NOT NULL,
			triangles   INT         NOT NULL,
			duration_ns BIGINT      NOT NULL,
			finished_at DATETIME(6) NOT NULL,
			INDEX idx_finished_at (finished_at)
		) ENGINE=InnoDB
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы mesh_builds: %w", err)
	}
	return nil
}

// Save использует INSERT ... ON DUPLICATE KEY UPDATE
func (r *MariaBuildRepo) Save(ctx context.Context, rec BuildRecord) error {
	if rec.BuildID == "" {
		return ErrInvalidBuild
	}

	query := `
		INSERT INTO mesh_builds (build_id, chunks, surfaces, faces, triangles, duration_ns, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			chunks = VALUES(chunks),
			surfaces = VALUES(surfaces),
			faces = VALUES(faces),
			triangles = VALUES(triangles),
			duration_ns = VALUES(duration_ns),
			finished_at = VALUES(finished_at)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.BuildID, rec.Chunks, rec.Surfaces, rec.Faces, rec.Triangles,
		int64(rec.Duration), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения сборки %s: %w", rec.BuildID, err)
	}
	return nil
}

const selectBuild = `SELECT build_id, chunks, surfaces, faces, triangles, duration_ns, finished_at FROM mesh_builds`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(row rowScanner) (BuildRecord, error) {
	var (
		rec BuildRecord
		ns  int64
	)
	if err := row.Scan(&rec.BuildID, &rec.Chunks, &rec.Surfaces, &rec.Faces, &rec.Triangles, &ns, &rec.FinishedAt); err != nil {
		return BuildRecord{}, err
	}
	rec.Duration = time.Duration(ns)
	rec.FinishedAt = rec.FinishedAt.UTC()
	return rec, nil
}

func (r *MariaBuildRepo) Get(ctx context.Context, buildID string) (BuildRecord, bool, error) {
	rec, err := scanBuild(r.db.QueryRowContext(ctx, selectBuild+` WHERE build_id = ?`, buildID))
	if errors.Is(err, sql.ErrNoRows) {
		return BuildRecord{}, false, nil
	}
	if err != nil {
		return BuildRecord{}, false, fmt.Errorf("ошибка загрузки сборки %s: %w", buildID, err)
	}
	return rec, true, nil
}

func (r *MariaBuildRepo) List(ctx context.Context, limit int) ([]BuildRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectBuild+` ORDER BY finished_at DESC, build_id DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории сборок: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close закрывает пул соединений
func (r *MariaBuildRepo) Close() error {
	return r.db.Close()
}
