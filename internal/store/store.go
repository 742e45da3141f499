package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sidebyside-backend/internal/catalog"
	"sidebyside-backend/internal/components/assert"
	"sidebyside-backend/internal/components/chrono"
	"sidebyside-backend/internal/components/keylock"
	"sidebyside-backend/internal/components/telemetry"
	"sidebyside-backend/internal/model"
	"sidebyside-backend/internal/store/db"
	"sidebyside-backend/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("internal/store")

const (
	report_store_upsert_version = "store.upsert-version"
	report_store_upsert_changes = "store.upsert-changes"
	report_store_query          = "store.query"
)

// Store persists versions and changes. Writes to the same version are
// serialized, the unique (product, version, text) constraint keeps
// concurrent scrapes of one version from duplicating changes.
type Store struct {
	db     *sql.DB
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
	tel    telemetry.API
	locks  *keylock.Map
}

// New applies the schema to database and wraps it.
func New(ctx context.Context, database *sql.DB, clock chrono.API, tel telemetry.API) (*Store, error) {
	assert.NotNil(database)
	assert.NotNil(clock)
	assert.NotNil(tel)

	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		db:     database,
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		clock:  clock,
		tel:    tel,
		locks:  &keylock.Map{},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func lockKey(product model.Product, label string) string {
	return fmt.Sprintf("%s/%s", product, label)
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *Store) versionParams(v model.Version) (db.UpsertVersionParams, error) {
	if !v.Product.Valid() {
		return db.UpsertVersionParams{}, &model.ValidationError{Field: "product", Value: string(v.Product), Reason: "unknown product"}
	}
	label, err := catalog.ParseLabel(v.Label)
	if err != nil {
		return db.UpsertVersionParams{}, err
	}
	return db.UpsertVersionParams{
		Product:      string(v.Product),
		Label:        label.Raw,
		SortKey:      catalog.SortKey(label),
		ReleaseDate:  toNullTime(v.ReleaseDate),
		Url:          v.URL,
		DiscoveredAt: s.clock.Now().Unix(),
		ScrapedAt:    toNullTime(v.ScrapedAt),
	}, nil
}

func versionFromRow(row db.Version) model.Version {
	return model.Version{
		Product:     model.Product(row.Product),
		Label:       row.Label,
		ReleaseDate: fromNullTime(row.ReleaseDate),
		URL:         row.Url,
		ScrapedAt:   fromNullTime(row.ScrapedAt),
	}
}

func changeFromRow(row db.Change) model.Change {
	return model.Change{
		ID:           row.ID,
		Product:      model.Product(row.Product),
		Version:      row.VersionLabel,
		Position:     int(row.Position),
		Connector:    row.Connector,
		Section:      row.Section,
		Text:         row.Text,
		IsBreaking:   row.IsBreaking != 0,
		IssueNumber:  row.IssueNumber,
		SourceAnchor: row.SourceAnchor,
	}
}

func (s *Store) fail(span trace.Span, id string, err error, params ...any) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.tel.ReportBroken(id, append([]any{err}, params...)...)
	return err
}

// UpsertVersion records a version. A known release date, url or scrape time
// is never cleared by a version that lacks it.
func (s *Store) UpsertVersion(ctx context.Context, v model.Version) error {
	ctx, span := tracer.Start(ctx, "UpsertVersion", trace.WithAttributes(
		attribute.String("product", string(v.Product)),
		attribute.String("label", v.Label),
	))
	defer span.End()

	params, err := s.versionParams(v)
	if err != nil {
		return err
	}
	err = s.qry.UpsertVersion(ctx, params)
	if err != nil {
		return s.fail(span, report_store_upsert_version, err, v.String())
	}
	return nil
}

// UpsertChanges records the changes of a version and marks the version
// scraped, in one transaction. It returns how many changes were new.
func (s *Store) UpsertChanges(ctx context.Context, v model.Version, changes []model.Change) (int, error) {
	ctx, span := tracer.Start(ctx, "UpsertChanges", trace.WithAttributes(
		attribute.String("product", string(v.Product)),
		attribute.String("label", v.Label),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	now := s.clock.Now()
	v.ScrapedAt = &now
	params, err := s.versionParams(v)
	if err != nil {
		return 0, err
	}
	for _, c := range changes {
		if c.Product != v.Product || c.Version != params.Label {
			return 0, fmt.Errorf("change %q belongs to %s %s, not %s", c.Text, c.Product, c.Version, v.String())
		}
	}

	unlock := s.locks.Lock(lockKey(v.Product, params.Label))
	defer unlock()

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return 0, s.fail(span, report_store_upsert_changes, err, v.String())
	}
	defer discard()

	err = txqry.UpsertVersion(ctx, params)
	if err != nil {
		return 0, s.fail(span, report_store_upsert_changes, err, v.String())
	}

	added := 0
	for _, c := range changes {
		var breaking int64
		if c.IsBreaking {
			breaking = 1
		}
		n, err := txqry.InsertChange(ctx, db.InsertChangeParams{
			Product:      string(c.Product),
			VersionLabel: params.Label,
			Position:     int64(c.Position),
			Connector:    c.Connector,
			Section:      c.Section,
			Text:         c.Text,
			TextFolded:   textutil.Fold(c.Text),
			IsBreaking:   breaking,
			IssueNumber:  c.IssueNumber,
			SourceAnchor: c.SourceAnchor,
		})
		if err != nil {
			return 0, s.fail(span, report_store_upsert_changes, err, v.String())
		}
		added += int(n)
	}

	err = commit()
	if err != nil {
		return 0, s.fail(span, report_store_upsert_changes, err, v.String())
	}
	span.SetAttributes(attribute.Int("added", added))
	return added, nil
}

// Version looks a version up, ok is false when it is not stored.
func (s *Store) Version(ctx context.Context, product model.Product, label string) (v model.Version, ok bool, err error) {
	parsed, err := catalog.ParseLabel(label)
	if err != nil {
		return model.Version{}, false, nil
	}
	row, err := s.qry.GetVersion(ctx, string(product), parsed.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, false, nil
	}
	if err != nil {
		s.tel.ReportBroken(report_store_query, err, "GetVersion")
		return model.Version{}, false, err
	}
	return versionFromRow(row), true, nil
}

func (s *Store) HasVersion(ctx context.Context, product model.Product, label string) (bool, error) {
	_, ok, err := s.Version(ctx, product, label)
	return ok, err
}

// IsScraped reports if the changes of a version are stored, a scrape that
// found zero changes still counts.
func (s *Store) IsScraped(ctx context.Context, product model.Product, label string) (bool, error) {
	v, ok, err := s.Version(ctx, product, label)
	if err != nil || !ok {
		return false, err
	}
	return v.Scraped(), nil
}

// Versions lists the versions of a product by release order. SequenceIndex
// is left for catalog.Order to assign.
func (s *Store) Versions(ctx context.Context, product model.Product) ([]model.Version, error) {
	rows, err := s.qry.ListVersions(ctx, string(product))
	if err != nil {
		s.tel.ReportBroken(report_store_query, err, "ListVersions")
		return nil, err
	}
	out := make([]model.Version, len(rows))
	for i, row := range rows {
		out[i] = versionFromRow(row)
	}
	return out, nil
}

func (s *Store) SetReleaseDate(ctx context.Context, product model.Product, label string, date time.Time) error {
	n, err := s.qry.SetReleaseDate(ctx, string(product), label, date.Unix())
	if err != nil {
		s.tel.ReportBroken(report_store_query, err, "SetReleaseDate")
		return err
	}
	if n == 0 {
		return &model.UnknownVersionError{Product: product, Label: label}
	}
	return nil
}

// ChangesFor lists the changes of one version in page order.
func (s *Store) ChangesFor(ctx context.Context, product model.Product, label string) ([]model.Change, error) {
	rows, err := s.qry.ListChanges(ctx, string(product), label)
	if err != nil {
		s.tel.ReportBroken(report_store_query, err, "ListChanges")
		return nil, err
	}
	out := make([]model.Change, len(rows))
	for i, row := range rows {
		out[i] = changeFromRow(row)
	}
	return out, nil
}

// SearchQuery filters a keyword search. Zero values disable a filter.
// FromVersion and ToVersion are inclusive and only meaningful with Product.
type SearchQuery struct {
	Keyword     string
	Product     model.Product
	Connector   string
	FromVersion string
	ToVersion   string
	Limit       int
	Offset      int
}

// Search finds changes whose text contains the keyword, case insensitive,
// newest version first and page order within a version.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]model.Change, error) {
	ctx, span := tracer.Start(ctx, "Search", trace.WithAttributes(
		attribute.String("keyword", q.Keyword),
	))
	defer span.End()

	params := db.SearchChangesParams{
		Keyword:   textutil.Fold(q.Keyword),
		Product:   nullString(string(q.Product)),
		Connector: nullString(q.Connector),
		Limit:     -1,
		Offset:    int64(q.Offset),
	}
	if q.Limit > 0 {
		params.Limit = int64(q.Limit)
	}
	if q.FromVersion != "" {
		key, err := catalog.SortKeyOf(q.FromVersion)
		if err != nil {
			return nil, err
		}
		params.MinSortKey = nullString(key)
	}
	if q.ToVersion != "" {
		key, err := catalog.SortKeyOf(q.ToVersion)
		if err != nil {
			return nil, err
		}
		params.MaxSortKey = nullString(key)
	}

	rows, err := s.qry.SearchChanges(ctx, params)
	if err != nil {
		return nil, s.fail(span, report_store_query, err, "SearchChanges")
	}
	out := make([]model.Change, len(rows))
	for i, row := range rows {
		out[i] = changeFromRow(row)
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Connectors lists every connector with at least one stored change, for one
// product or, when product is empty, for all of them.
func (s *Store) Connectors(ctx context.Context, product model.Product) ([]string, error) {
	connectors, err := s.qry.ListConnectors(ctx, nullString(string(product)))
	if err != nil {
		s.tel.ReportBroken(report_store_query, err, "ListConnectors")
		return nil, err
	}
	return connectors, nil
}
