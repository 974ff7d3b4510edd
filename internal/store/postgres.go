// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trial-matcher/internal/common/logger"
	"trial-matcher/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSubjectNotFound = errors.New("SUBJECT_NOT_FOUND")
	ErrQuery           = errors.New("STORE_QUERY_FAILED")
	ErrPersist         = errors.New("MATCH_PERSIST_FAILED")
)

const (
	subjectCachePrefix = "subject:profile:"
	matchStatusPending = "pending"
	DefaultCacheTTL    = 15 * time.Minute
)

// PostgresStore loads subjects and offerings and records match results.
// Subject profiles are cached in Redis; offerings are always read fresh.
type PostgresStore struct {
	db     *sql.DB
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PostgresStore{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
	}
}

type demographics struct {
	Age       *int   `json:"age"`
	AgeRange  string `json:"age_range"`
	Gender    string `json:"gender"`
	Ethnicity string `json:"ethnicity"`
	Location  string `json:"location"`
}

type eligibilityCriteria struct {
	MinimumAge          *int                   `json:"minimum_age"`
	MaximumAge          *int                   `json:"maximum_age"`
	Gender              string                 `json:"gender"`
	RequiredBiomarkers  map[string]interface{} `json:"required_biomarkers"`
	ExcludedConditions  []string               `json:"excluded_conditions"`
	ExcludedMedications []string               `json:"excluded_medications"`
}

// GetSubject returns the active patient profile for id.
func (s *PostgresStore) GetSubject(ctx context.Context, id string) (*models.SubjectProfile, error) {
	cacheKey := subjectCachePrefix + id
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var profile models.SubjectProfile
			if err := json.Unmarshal([]byte(val), &profile); err == nil {
				return &profile, nil
			}
		}
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT demographics, conditions, medications, lab_results
		FROM patients WHERE id = $1 AND is_active = TRUE`, id)

	var demo, conditions, medications, labs []byte
	if err := row.Scan(&demo, &conditions, &medications, &labs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, id)
		}
		return nil, fmt.Errorf("%w: patients: %v", ErrQuery, err)
	}

	profile := decodeSubject(demo, conditions, medications, labs)

	if s.redis != nil {
		data, _ := json.Marshal(profile)
		if err := s.redis.Set(ctx, cacheKey, data, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to cache subject profile", map[string]interface{}{
				"subjectId": id,
				"error":     err,
			})
		}
	}

	return profile, nil
}

// InvalidateSubject drops the cached profile so the next read hits Postgres.
func (s *PostgresStore) InvalidateSubject(ctx context.Context, id string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, subjectCachePrefix+id).Err()
}

func decodeSubject(demo, conditions, medications, labs []byte) *models.SubjectProfile {
	profile := &models.SubjectProfile{
		Conditions:  []string{},
		Medications: []string{},
		Biomarkers:  map[string]string{},
	}

	var d demographics
	if len(demo) > 0 && json.Unmarshal(demo, &d) == nil {
		profile.AgeRange = d.AgeRange
		if profile.AgeRange == "" && d.Age != nil {
			profile.AgeRange = strconv.Itoa(*d.Age)
		}
		profile.Gender = d.Gender
		profile.Ethnicity = d.Ethnicity
		profile.Location = d.Location
	}

	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &profile.Conditions); err != nil {
			profile.Conditions = []string{}
		}
	}
	if len(medications) > 0 {
		if err := json.Unmarshal(medications, &profile.Medications); err != nil {
			profile.Medications = []string{}
		}
	}

	var raw map[string]interface{}
	if len(labs) > 0 && json.Unmarshal(labs, &raw) == nil {
		profile.Biomarkers = stringifyValues(raw)
	}
	return profile
}

// ListOfferings returns active trials ordered by id. A non-empty ids slice
// restricts the result to those trials.
func (s *PostgresStore) ListOfferings(ctx context.Context, ids []string) ([]*models.Offering, error) {
	query := `
		SELECT id, nct_id, title, phase, conditions, eligibility_criteria
		FROM trials WHERE is_active = TRUE`
	var args []interface{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: trials: %v", ErrQuery, err)
	}
	defer rows.Close()

	offerings := []*models.Offering{}
	for rows.Next() {
		var (
			o                    models.Offering
			nctID, title, phase  sql.NullString
			conditions, criteria []byte
		)
		if err := rows.Scan(&o.ID, &nctID, &title, &phase, &conditions, &criteria); err != nil {
			return nil, fmt.Errorf("%w: trials scan: %v", ErrQuery, err)
		}
		o.NCTID = nctID.String
		o.Title = title.String
		o.Phase = phase.String
		decodeOffering(&o, conditions, criteria)
		offerings = append(offerings, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: trials: %v", ErrQuery, err)
	}
	return offerings, nil
}

func decodeOffering(o *models.Offering, conditions, criteria []byte) {
	o.Conditions = []string{}
	o.RequiredBiomarkers = map[string]string{}
	o.ExcludedConditions = []string{}
	o.ExcludedMedications = []string{}

	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &o.Conditions); err != nil {
			o.Conditions = []string{}
		}
	}

	var ec eligibilityCriteria
	if len(criteria) == 0 || json.Unmarshal(criteria, &ec) != nil {
		return
	}
	o.AgeMin = ec.MinimumAge
	o.AgeMax = ec.MaximumAge
	o.Gender = ec.Gender
	o.RequiredBiomarkers = stringifyValues(ec.RequiredBiomarkers)
	if ec.ExcludedConditions != nil {
		o.ExcludedConditions = ec.ExcludedConditions
	}
	if ec.ExcludedMedications != nil {
		o.ExcludedMedications = ec.ExcludedMedications
	}
}

// lab results and biomarker requirements arrive as mixed JSON scalars
func stringifyValues(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

// SaveMatches writes one pending match row per result inside a single
// transaction and returns the ids it wrote.
func (s *PostgresStore) SaveMatches(ctx context.Context, results []*models.MatchResult) ([]string, error) {
	if len(results) == 0 {
		return []string{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrPersist, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO matches (
			id, patient_id, trial_id, status, confidence_score, eligibility_score,
			reasoning, ai_explanation, matched_criteria, unmatched_criteria, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %v", ErrPersist, err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		id := r.MatchID
		if id == "" {
			id = uuid.NewString()
		}

		reasoning, _ := json.Marshal(r.Reasoning)
		matched, _ := json.Marshal(r.MatchedCriteria())
		unmatched, _ := json.Marshal(r.UnmatchedCriteria())

		createdAt := r.EvaluatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			id, r.SubjectID, r.OfferingID, matchStatusPending,
			r.Confidence, r.BaseConfidence,
			reasoning, nullIfEmpty(r.Explanation), matched, unmatched, createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: insert %s: %v", ErrPersist, r.OfferingID, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrPersist, err)
	}

	s.logger.Info("match records saved", map[string]interface{}{
		"count": len(ids),
	})
	return ids, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
