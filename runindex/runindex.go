// Package runindex keeps a local SQLite index of completed experiment runs
// so results can be located and compared without walking the output tree.
package runindex

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed run.
type Record struct {
	ID        int64
	RunDir    string
	Model     string
	Dataset   string
	Epochs    int
	BatchSize int
	Seed      int64

	LearningRate float64
	InitialLR    float64
	Warmup       string

	BestValAccuracy float64
	FinalTrainLoss  float64

	CreatedAt time.Time
}

// Index is a handle to the run database.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) the run index at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run index: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_dir TEXT NOT NULL UNIQUE,
			model TEXT NOT NULL,
			dataset TEXT NOT NULL,
			epochs INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			learning_rate REAL NOT NULL,
			initial_lr REAL NOT NULL,
			warmup TEXT NOT NULL,
			best_val_accuracy REAL NOT NULL,
			final_train_loss REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run index: %v", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error { return ix.db.Close() }

// Insert records a completed run and returns its assigned ID.
func (ix *Index) Insert(rec *Record) (int64, error) {
	if rec.RunDir == "" {
		return 0, fmt.Errorf("run record needs a run directory")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	res, err := ix.db.Exec(`
		INSERT INTO runs(
			run_dir, model, dataset, epochs, batch_size, seed,
			learning_rate, initial_lr, warmup,
			best_val_accuracy, final_train_loss, created_at
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.RunDir, rec.Model, rec.Dataset, rec.Epochs, rec.BatchSize, rec.Seed,
		rec.LearningRate, rec.InitialLR, rec.Warmup,
		rec.BestValAccuracy, rec.FinalTrainLoss, created.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %v", err)
	}
	rec.ID = id
	rec.CreatedAt = created
	return id, nil
}

// List returns runs newest first, optionally filtered by model and dataset.
// Empty filter values match everything.
func (ix *Index) List(model, dataset string) ([]Record, error) {
	rows, err := ix.db.Query(`
		SELECT id, run_dir, model, dataset, epochs, batch_size, seed,
		       learning_rate, initial_lr, warmup,
		       best_val_accuracy, final_train_loss, created_at
		FROM runs
		WHERE (? = '' OR model = ?) AND (? = '' OR dataset = ?)
		ORDER BY id DESC`,
		model, model, dataset, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %v", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var created int64
		err := rows.Scan(&rec.ID, &rec.RunDir, &rec.Model, &rec.Dataset,
			&rec.Epochs, &rec.BatchSize, &rec.Seed,
			&rec.LearningRate, &rec.InitialLR, &rec.Warmup,
			&rec.BestValAccuracy, &rec.FinalTrainLoss, &created)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %v", err)
		}
		rec.CreatedAt = time.Unix(created, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Best returns the highest-accuracy run for a model and dataset pair.
func (ix *Index) Best(model, dataset string) (*Record, error) {
	records, err := ix.List(model, dataset)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	best := &records[0]
	for i := range records {
		if records[i].BestValAccuracy > best.BestValAccuracy {
			best = &records[i]
		}
	}
	return best, nil
}
