package source

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/validation"
)

// DefaultAppointmentsTable is the extract table read when none is configured.
const DefaultAppointmentsTable = "outpatient_appointments"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOptions configures the relational source.
type PostgresOptions struct {
	// DatabaseURL is a pgx connection string.
	DatabaseURL string
	// Table holds the extract rows, one appointment per row. Defaults to
	// DefaultAppointmentsTable.
	Table string
	// MaxConns bounds the pool. Defaults to 10.
	MaxConns int32
}

// PostgresSource streams appointment rows from an extract table.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource connects, verifies the database is reachable and returns
// the source. The caller owns the source and must Close it.
func NewPostgresSource(ctx context.Context, opts PostgresOptions) (*PostgresSource, error) {
	if opts.Table == "" {
		opts.Table = DefaultAppointmentsTable
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 10
	}

	v := validation.NewConfigValidator("postgres")
	v.Required("database_url", opts.DatabaseURL)
	v.Custom("table", func() error {
		if !identifierPattern.MatchString(opts.Table) {
			return fmt.Errorf("%q is not a plain identifier", opts.Table)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse database url: %w", err)
	}
	config.MaxConns = opts.MaxConns
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("source: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("source: database unreachable: %w", err)
	}

	return &PostgresSource{pool: pool, table: opts.Table}, nil
}

// Name identifies the source in logs and metrics.
func (s *PostgresSource) Name() string { return "postgres" }

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Each streams every row of the extract table. Nulls come through as empty
// strings so the rows look exactly like CSV cells to the normalizer.
func (s *PostgresSource) Each(ctx context.Context, fn func(records.RawRecord) error) error {
	query := fmt.Sprintf(`
		SELECT COALESCE(patient_key, ''),
		       COALESCE(age::text, ''),
		       COALESCE(attended_or_did_not_attend, ''),
		       COALESCE(appointment_date::text, ''),
		       COALESCE(postcode_sector_of_usual_address, ''),
		       COALESCE(organisation_code_code_of_provider, ''),
		       COALESCE(site_code_of_treatment, ''),
		       COALESCE(provider_location, ''),
		       COALESCE(treatment_function_code, '')
		FROM %s
	`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("source: query %s: %w", s.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw records.RawRecord
		if err := rows.Scan(
			&raw.PatientKey,
			&raw.Age,
			&raw.Outcome,
			&raw.Date,
			&raw.PostcodeSector,
			&raw.OrgCode,
			&raw.SiteCode,
			&raw.ProviderLocation,
			&raw.TreatmentFunction,
		); err != nil {
			return fmt.Errorf("source: scan %s: %w", s.table, err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("source: iterate %s: %w", s.table, err)
	}
	return nil
}
