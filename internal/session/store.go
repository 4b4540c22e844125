package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"facet/internal/config"
	"facet/internal/geom"
	"facet/internal/logging"
)

// Store manages session persistence backed by SQLite plus on-disk image storage.
type Store struct {
	db     *sql.DB
	path   string
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	uploads map[string]*sync.Mutex
}

// Open initializes or connects to the sessions database and applies the schema.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "sessions.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:      db,
		path:    dbPath,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "session"),
		uploads: make(map[string]*sync.Mutex),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create allocates a fresh session with backing image storage.
func (s *Store) Create(ctx context.Context, projectName, roomType string) (*Session, error) {
	if projectName == "" {
		projectName = fmt.Sprintf("project_%d", time.Now().Unix())
	}
	if roomType == "" {
		roomType = "unknown"
	}

	id := uuid.NewString()
	storageDir := filepath.Join(s.cfg.SessionsDir(), id)
	if err := os.MkdirAll(imagesDir(storageDir), 0o755); err != nil {
		return nil, fmt.Errorf("create session storage: %w", err)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, project_name, room_type, storage_dir, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		projectName,
		roomType,
		storageDir,
		StatusActive,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		_ = os.RemoveAll(storageDir)
		return nil, fmt.Errorf("insert session: %w", err)
	}

	s.logger.Info("session created",
		logging.String(logging.FieldSessionID, id),
		logging.String("project", projectName),
	)
	return s.Get(ctx, id)
}

// Get fetches a session with its image records and annotations.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Images, err = s.imagesFor(ctx, id); err != nil {
		return nil, err
	}
	if sess.Annotations, err = s.annotationsFor(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

// AddImage persists an uploaded photograph and appends its record. When the
// classification is outside the configured benign set, a defect annotation at
// the camera position is derived as well. Uploads to the same session are
// serialized so sequential filenames never collide.
func (s *Store) AddImage(ctx context.Context, id string, imageBytes []byte, pose geom.Pose, transcript, classification string, confidence float64) (imageCount, annotationCount int, err error) {
	lock := s.uploadLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.getRow(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if sess.Status != StatusActive {
		return 0, 0, ErrClosed
	}

	seq, err := s.imageCount(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if seq >= s.cfg.Capture.MaxImagesPerSession {
		return 0, 0, ErrImageLimit
	}

	filename := fmt.Sprintf("img_%04d.jpg", seq)
	path := filepath.Join(sess.ImagesDir(), filename)
	if err := os.WriteFile(path, imageBytes, 0o644); err != nil {
		return 0, 0, fmt.Errorf("write image file: %w", err)
	}

	annotate := !s.cfg.IsBenignClass(classification)
	if err := s.insertImage(ctx, id, seq, filename, path, pose, transcript, classification, confidence, annotate); err != nil {
		_ = os.Remove(path)
		return 0, 0, err
	}

	imageCount = seq + 1
	if annotationCount, err = s.annotationCount(ctx, id); err != nil {
		return 0, 0, err
	}

	s.logger.Debug("image stored",
		logging.String(logging.FieldSessionID, id),
		logging.String("filename", filename),
		logging.String("classification", classification),
		logging.Bool("annotated", annotate),
	)
	return imageCount, annotationCount, nil
}

func (s *Store) insertImage(ctx context.Context, id string, seq int, filename, path string, pose geom.Pose, transcript, classification string, confidence float64, annotate bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin image tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO images (
            session_id, seq, filename, path,
            pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, rot_w,
            transcript, classification, confidence, captured_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seq, filename, path,
		pose.Position.X, pose.Position.Y, pose.Position.Z,
		pose.Rotation.X, pose.Rotation.Y, pose.Rotation.Z, pose.Rotation.W,
		nullableString(transcript),
		nullableString(classification),
		confidence,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}

	if annotate {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO annotations (session_id, image_seq, pos_x, pos_y, pos_z, classification, transcript)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, seq,
			pose.Position.X, pose.Position.Y, pose.Position.Z,
			classification,
			nullableString(transcript),
		)
		if err != nil {
			return fmt.Errorf("insert annotation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	return nil
}

// List returns listing summaries for every known session ordered by creation time.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT s.id, s.project_name, s.room_type, s.status, s.created_at,
               (SELECT COUNT(1) FROM images i WHERE i.session_id = s.id),
               (SELECT COUNT(1) FROM annotations a WHERE a.session_id = s.id)
        FROM sessions s ORDER BY s.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary    Summary
			statusStr  string
			createdRaw string
		)
		if err := rows.Scan(&summary.ID, &summary.ProjectName, &summary.RoomType, &statusStr, &createdRaw,
			&summary.ImageCount, &summary.AnnotationCount); err != nil {
			return nil, err
		}
		summary.Status = Status(statusStr)
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			summary.CreatedAt = created
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// CloseSession marks a session closed so further uploads are refused.
func (s *Store) CloseSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, StatusClosed, id)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a session's backing storage and forgets all of its records.
// Storage removal is best-effort; file errors are logged, not returned.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, err := s.getRow(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if err := os.RemoveAll(sess.StorageDir); err != nil {
		s.logger.Warn("session storage removal incomplete",
			logging.String(logging.FieldSessionID, id),
			logging.Error(err),
		)
	}

	s.mu.Lock()
	delete(s.uploads, id)
	s.mu.Unlock()

	s.logger.Info("session deleted", logging.String(logging.FieldSessionID, id))
	return nil
}

// Snapshot returns the immutable view of a session used by a reconstruction
// job; uploads after the snapshot do not affect it.
func (s *Store) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:          sess.ID,
		ProjectName: sess.ProjectName,
		RoomType:    sess.RoomType,
		ImagesDir:   sess.ImagesDir(),
		Images:      sess.Images,
		Annotations: sess.Annotations,
	}, nil
}

func (s *Store) uploadLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.uploads[id]
	if !ok {
		lock = &sync.Mutex{}
		s.uploads[id] = lock
	}
	return lock
}

func (s *Store) getRow(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, project_name, room_type, storage_dir, status, created_at FROM sessions WHERE id = ?`,
		id,
	)
	var (
		sess       Session
		statusStr  string
		createdRaw string
	)
	err := row.Scan(&sess.ID, &sess.ProjectName, &sess.RoomType, &sess.StorageDir, &statusStr, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Status = Status(statusStr)
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		sess.CreatedAt = created
	}
	return &sess, nil
}

func (s *Store) imageCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM images WHERE session_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (s *Store) annotationCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM annotations WHERE session_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return count, nil
}

func (s *Store) imagesFor(ctx context.Context, id string) ([]ImageRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT seq, filename, path, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, rot_w,
                transcript, classification, confidence, captured_at
         FROM images WHERE session_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var records []ImageRecord
	for rows.Next() {
		var (
			rec            ImageRecord
			transcript     sql.NullString
			classification sql.NullString
			capturedRaw    string
		)
		if err := rows.Scan(&rec.Index, &rec.Filename, &rec.Path,
			&rec.Pose.Position.X, &rec.Pose.Position.Y, &rec.Pose.Position.Z,
			&rec.Pose.Rotation.X, &rec.Pose.Rotation.Y, &rec.Pose.Rotation.Z, &rec.Pose.Rotation.W,
			&transcript, &classification, &rec.Confidence, &capturedRaw); err != nil {
			return nil, err
		}
		rec.Transcript = transcript.String
		rec.Classification = classification.String
		if captured, err := time.Parse(time.RFC3339Nano, capturedRaw); err == nil {
			rec.CapturedAt = captured
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) annotationsFor(ctx context.Context, id string) ([]Annotation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT image_seq, pos_x, pos_y, pos_z, classification, transcript
         FROM annotations WHERE session_id = ? ORDER BY image_seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	var annotations []Annotation
	for rows.Next() {
		var (
			ann        Annotation
			transcript sql.NullString
		)
		if err := rows.Scan(&ann.ImageIndex, &ann.Position.X, &ann.Position.Y, &ann.Position.Z,
			&ann.Classification, &transcript); err != nil {
			return nil, err
		}
		ann.Transcript = transcript.String
		annotations = append(annotations, ann)
	}
	return annotations, rows.Err()
}

func imagesDir(storageDir string) string {
	return filepath.Join(storageDir, "images")
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
