package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/esa.report/internal/compare"
	"github.com/banshee-data/esa.report/internal/timeutil"
	"github.com/banshee-data/esa.report/internal/version"
)

// Run is one stored analysis run.
type Run struct {
	RunID           string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
	DataDir         string    `json:"data_dir"`
	Version         string    `json:"version"`
	Candidates      int       `json:"candidates"`
	Insufficient    int       `json:"insufficient"`
	MultipleDropped int       `json:"multiple_dropped"`
	Duplicates      int       `json:"duplicates"`
	Groups          int       `json:"groups"`
	Excluded        int       `json:"excluded"`
}

// StoredGroup is a comparison group as persisted.
type StoredGroup struct {
	Position     int                `json:"position"`
	FixedKey     string             `json:"fixed_key"`
	Varying      string             `json:"varying"`
	Candidate    []string           `json:"candidate"`
	Correlations map[string]float64 `json:"correlations,omitempty"`
	Members      []StoredMember     `json:"members"`
}

// StoredMember is one group member. Image and histogram statistics are nil
// when the member carried no such view.
type StoredMember struct {
	Path          string   `json:"path"`
	VaryingValue  string   `json:"varying_value,omitempty"`
	Min           *float64 `json:"min_value,omitempty"`
	Max           *float64 `json:"max_value,omitempty"`
	Mean          *float64 `json:"mean_value,omitempty"`
	Std           *float64 `json:"std_value,omitempty"`
	NonZeroPixels *int     `json:"non_zero_pixels,omitempty"`
	PeakPosition  *float64 `json:"peak_position,omitempty"`
	TotalCounts   *float64 `json:"total_counts,omitempty"`
}

// ExcludedFile is a record left out of a run, with the reason.
type ExcludedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunStore provides persistence for analysis runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a RunStore. A nil clock uses the wall clock.
func NewRunStore(db *sql.DB, clock timeutil.Clock) *RunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunStore{db: db, clock: clock}
}

// SaveRun stores sum in a single transaction and returns the new run id.
func (s *RunStore) SaveRun(sum compare.Summary, dataDir string) (string, error) {
	runID := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin run transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (
			run_id, created_at_ns, data_dir, version, candidates, insufficient,
			multiple_dropped, duplicates, group_count, excluded_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.clock.Now().UnixNano(), dataDir, version.Version,
		sum.Candidates, sum.Insufficient, sum.MultipleDropped, sum.Duplicates,
		len(sum.Results), len(sum.Excluded),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, r := range sum.Results {
		if err := insertGroup(tx, runID, i, r); err != nil {
			return "", err
		}
	}

	for _, rec := range sum.Excluded {
		reason := ""
		if err := rec.LoadError(); err != nil {
			reason = err.Error()
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO excluded_files (run_id, path, reason) VALUES (?, ?, ?)`,
			runID, rec.Path(), reason); err != nil {
			return "", fmt.Errorf("insert excluded file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

func insertGroup(tx *sql.Tx, runID string, position int, r compare.Result) error {
	candidate := make([]string, len(r.Candidate))
	for i, f := range r.Candidate {
		candidate[i] = string(f)
	}
	var correlations sql.NullString
	if len(r.Correlations) > 0 {
		b, err := json.Marshal(r.Correlations)
		if err != nil {
			return fmt.Errorf("encode correlations: %w", err)
		}
		correlations = sql.NullString{String: string(b), Valid: true}
	}

	res, err := tx.Exec(`
		INSERT INTO comparison_groups (run_id, position, fixed_key, varying, candidate, correlations_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, position, r.FixedKey(), string(r.Varying), strings.Join(candidate, ","), correlations,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("group id: %w", err)
	}

	images := make(map[string]compare.ImageStats, len(r.Images))
	for _, st := range r.Images {
		images[st.Path] = st
	}
	histograms := make(map[string]compare.HistogramStats, len(r.Histograms))
	for _, st := range r.Histograms {
		histograms[st.Path] = st
	}
	field, hasField := r.Varying.Field()

	for i, m := range r.Members {
		var (
			varying                 string
			minV, maxV, meanV, stdV sql.NullFloat64
			nonZero                 sql.NullInt64
			peak, totalCounts       sql.NullFloat64
		)
		if hasField {
			varying = m.Value(field).String()
		}
		if st, ok := images[m.Path()]; ok {
			minV = sql.NullFloat64{Float64: st.Min, Valid: true}
			maxV = sql.NullFloat64{Float64: st.Max, Valid: true}
			meanV = sql.NullFloat64{Float64: st.Mean, Valid: true}
			stdV = sql.NullFloat64{Float64: st.Std, Valid: true}
			nonZero = sql.NullInt64{Int64: int64(st.NonZero), Valid: true}
		}
		if st, ok := histograms[m.Path()]; ok {
			peak = sql.NullFloat64{Float64: st.PeakBin, Valid: true}
			totalCounts = sql.NullFloat64{Float64: st.TotalCounts, Valid: true}
		}
		_, err := tx.Exec(`
			INSERT INTO group_members (
				group_id, position, path, varying_value, min_value, max_value,
				mean_value, std_value, non_zero_pixels, peak_position, total_counts
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			groupID, i, m.Path(), varying, minV, maxV, meanV, stdV, nonZero, peak, totalCounts,
		)
		if err != nil {
			return fmt.Errorf("insert group member: %w", err)
		}
	}
	return nil
}

// ListRuns returns every stored run, newest first.
func (s *RunStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at_ns, data_dir, version, candidates, insufficient,
		       multiple_dropped, duplicates, group_count, excluded_count
		FROM analysis_runs
		ORDER BY created_at_ns DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var createdNs int64
		if err := rows.Scan(&r.RunID, &createdNs, &r.DataDir, &r.Version, &r.Candidates,
			&r.Insufficient, &r.MultipleDropped, &r.Duplicates, &r.Groups, &r.Excluded); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdNs).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadGroups returns the groups of a run in their stored order.
func (s *RunStore) LoadGroups(runID string) ([]StoredGroup, error) {
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM analysis_runs WHERE run_id = ?`, runID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT g.group_id, g.position, g.fixed_key, g.varying, g.candidate, g.correlations_json,
		       m.path, m.varying_value, m.min_value, m.max_value, m.mean_value, m.std_value,
		       m.non_zero_pixels, m.peak_position, m.total_counts
		FROM comparison_groups g
		JOIN group_members m ON m.group_id = g.group_id
		WHERE g.run_id = ?
		ORDER BY g.position, m.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()

	var (
		groups []StoredGroup
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			groupID                 int64
			g                       StoredGroup
			candidate               string
			correlations            sql.NullString
			m                       StoredMember
			minV, maxV, meanV, stdV sql.NullFloat64
			nonZero                 sql.NullInt64
			peak, totalCounts       sql.NullFloat64
		)
		if err := rows.Scan(&groupID, &g.Position, &g.FixedKey, &g.Varying, &candidate, &correlations,
			&m.Path, &m.VaryingValue, &minV, &maxV, &meanV, &stdV, &nonZero, &peak, &totalCounts); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if groupID != lastID {
			if candidate != "" {
				g.Candidate = strings.Split(candidate, ",")
			}
			if correlations.Valid {
				if err := json.Unmarshal([]byte(correlations.String), &g.Correlations); err != nil {
					return nil, fmt.Errorf("decode correlations: %w", err)
				}
			}
			groups = append(groups, g)
			lastID = groupID
		}
		m.Min = nullFloat(minV)
		m.Max = nullFloat(maxV)
		m.Mean = nullFloat(meanV)
		m.Std = nullFloat(stdV)
		m.NonZeroPixels = nullInt(nonZero)
		m.PeakPosition = nullFloat(peak)
		m.TotalCounts = nullFloat(totalCounts)
		last := &groups[len(groups)-1]
		last.Members = append(last.Members, m)
	}
	return groups, rows.Err()
}

// Excluded returns the files left out of a run, by path.
func (s *RunStore) Excluded(runID string) ([]ExcludedFile, error) {
	rows, err := s.db.Query(`SELECT path, reason FROM excluded_files WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("list excluded files: %w", err)
	}
	defer rows.Close()

	var out []ExcludedFile
	for rows.Next() {
		var f ExcludedFile
		if err := rows.Scan(&f.Path, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan excluded file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
