package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// searchRawWithQuerier executes a native FTS5 match expression. Rows come
// back chunk-level, best rank first; ties are broken by rowid so the
// ordering is stable for a fixed index state. The snippet function marks
// matched terms with brackets and joins discontinuous windows with an
// ellipsis.
func (s *SQLiteStore) searchRawWithQuerier(ctx context.Context, q querier, match string, fetchLimit int) ([]MatchRow, error) {
	if fetchLimit <= 0 {
		fetchLimit = 1
	}

	const query = `
		SELECT book_id, section,
		       snippet(book_fts, 2, '[', ']', ' ... ', 18) AS snippet_text,
		       bm25(book_fts) AS rank
		FROM book_fts
		WHERE book_fts MATCH ?
		ORDER BY rank, rowid
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, match, fetchLimit)
	if err != nil {
		if isMatchSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]MatchRow, 0, fetchLimit)
	for rows.Next() {
		var row MatchRow
		var section, snippet sql.NullString
		var rank sql.NullFloat64
		if err := rows.Scan(&row.BookID, &section, &snippet, &rank); err != nil {
			return nil, err
		}
		row.Section = section.String
		row.Snippet = snippet.String
		if rank.Valid {
			row.Rank = rank.Float64
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		if isMatchSyntaxError(err) {
			return nil, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
		return nil, err
	}
	return results, nil
}

func (s *SQLiteStore) SearchRaw(ctx context.Context, match string, fetchLimit int) ([]MatchRow, error) {
	return s.searchRawWithQuerier(ctx, s.querier(), match, fetchLimit)
}

// isMatchSyntaxError classifies driver errors caused by a malformed MATCH
// expression, as opposed to store-level failures. Both supported drivers
// surface these as plain error strings.
func isMatchSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "malformed match") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such cursor")
}
