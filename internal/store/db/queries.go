package db

import (
	"context"
	"database/sql"
)

type Version struct {
	Product      string
	Label        string
	SortKey      string
	ReleaseDate  sql.NullInt64
	Url          string
	DiscoveredAt int64
	ScrapedAt    sql.NullInt64
}

type Change struct {
	ID           int64
	Product      string
	VersionLabel string
	Position     int64
	Connector    string
	Section      string
	Text         string
	IsBreaking   int64
	IssueNumber  string
	SourceAnchor string
}

const versionColumns = `product, label, sort_key, release_date, url, discovered_at, scraped_at`

func scanVersion(row interface{ Scan(...any) error }) (Version, error) {
	var v Version
	err := row.Scan(
		&v.Product,
		&v.Label,
		&v.SortKey,
		&v.ReleaseDate,
		&v.Url,
		&v.DiscoveredAt,
		&v.ScrapedAt,
	)
	return v, err
}

const changeColumns = `c.id, c.product, c.version_label, c.position, c.connector, c.section, c.text, c.is_breaking, c.issue_number, c.source_anchor`

func scanChange(row interface{ Scan(...any) error }) (Change, error) {
	var c Change
	err := row.Scan(
		&c.ID,
		&c.Product,
		&c.VersionLabel,
		&c.Position,
		&c.Connector,
		&c.Section,
		&c.Text,
		&c.IsBreaking,
		&c.IssueNumber,
		&c.SourceAnchor,
	)
	return c, err
}

const upsertVersion = `
INSERT INTO versions (product, label, sort_key, release_date, url, discovered_at, scraped_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product, label) DO UPDATE SET
    sort_key = excluded.sort_key,
    release_date = coalesce(excluded.release_date, versions.release_date),
    url = CASE WHEN excluded.url != '' THEN excluded.url ELSE versions.url END,
    scraped_at = coalesce(excluded.scraped_at, versions.scraped_at)
`

type UpsertVersionParams struct {
	Product      string
	Label        string
	SortKey      string
	ReleaseDate  sql.NullInt64
	Url          string
	DiscoveredAt int64
	ScrapedAt    sql.NullInt64
}

// UpsertVersion never clears a known release date, url or scrape time.
func (q *Queries) UpsertVersion(ctx context.Context, arg UpsertVersionParams) error {
	_, err := q.db.ExecContext(ctx, upsertVersion,
		arg.Product,
		arg.Label,
		arg.SortKey,
		arg.ReleaseDate,
		arg.Url,
		arg.DiscoveredAt,
		arg.ScrapedAt,
	)
	return err
}

const getVersion = `SELECT ` + versionColumns + ` FROM versions WHERE product = ? AND label = ?`

func (q *Queries) GetVersion(ctx context.Context, product, label string) (Version, error) {
	row := q.db.QueryRowContext(ctx, getVersion, product, label)
	return scanVersion(row)
}

const listVersions = `SELECT ` + versionColumns + ` FROM versions WHERE product = ? ORDER BY sort_key`

func (q *Queries) ListVersions(ctx context.Context, product string) ([]Version, error) {
	rows, err := q.db.QueryContext(ctx, listVersions, product)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setReleaseDate = `UPDATE versions SET release_date = ? WHERE product = ? AND label = ?`

func (q *Queries) SetReleaseDate(ctx context.Context, product, label string, releaseDate int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setReleaseDate, releaseDate, product, label)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertChange = `
INSERT INTO changes (product, version_label, position, connector, section, text, text_folded, is_breaking, issue_number, source_anchor)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product, version_label, text) DO NOTHING
`

type InsertChangeParams struct {
	Product      string
	VersionLabel string
	Position     int64
	Connector    string
	Section      string
	Text         string
	TextFolded   string
	IsBreaking   int64
	IssueNumber  string
	SourceAnchor string
}

// InsertChange returns 1 when the change was added and 0 when an identical
// change already existed.
func (q *Queries) InsertChange(ctx context.Context, arg InsertChangeParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertChange,
		arg.Product,
		arg.VersionLabel,
		arg.Position,
		arg.Connector,
		arg.Section,
		arg.Text,
		arg.TextFolded,
		arg.IsBreaking,
		arg.IssueNumber,
		arg.SourceAnchor,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listChanges = `SELECT ` + changeColumns + ` FROM changes c WHERE c.product = ? AND c.version_label = ? ORDER BY c.position, c.id`

func (q *Queries) ListChanges(ctx context.Context, product, label string) ([]Change, error) {
	rows, err := q.db.QueryContext(ctx, listChanges, product, label)
	if err != nil {
		return nil, err
	}
	return collectChanges(rows)
}

const searchChanges = `
SELECT ` + changeColumns + `
FROM changes c
JOIN versions v ON v.product = c.product AND v.label = c.version_label
WHERE instr(c.text_folded, ?1) > 0
    AND (?2 IS NULL OR c.product = ?2)
    AND (?3 IS NULL OR c.connector = ?3)
    AND (?4 IS NULL OR v.sort_key >= ?4)
    AND (?5 IS NULL OR v.sort_key <= ?5)
ORDER BY v.sort_key DESC, c.product, c.id
LIMIT ?6 OFFSET ?7
`

type SearchChangesParams struct {
	// Keyword is matched against text_folded, so it must be folded the same way
	Keyword    string
	Product    sql.NullString
	Connector  sql.NullString
	MinSortKey sql.NullString
	MaxSortKey sql.NullString
	// a negative limit is no limit
	Limit  int64
	Offset int64
}

func (q *Queries) SearchChanges(ctx context.Context, arg SearchChangesParams) ([]Change, error) {
	rows, err := q.db.QueryContext(ctx, searchChanges,
		arg.Keyword,
		arg.Product,
		arg.Connector,
		arg.MinSortKey,
		arg.MaxSortKey,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectChanges(rows)
}

const listConnectors = `SELECT DISTINCT connector FROM changes WHERE (?1 IS NULL OR product = ?1) ORDER BY connector`

func (q *Queries) ListConnectors(ctx context.Context, product sql.NullString) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listConnectors, product)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var connector string
		if err := rows.Scan(&connector); err != nil {
			return nil, err
		}
		items = append(items, connector)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func collectChanges(rows *sql.Rows) ([]Change, error) {
	defer rows.Close()

	var items []Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
