package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
)

// minTrigramQuery is the shortest query the trigram tokenizer can match.
const minTrigramQuery = 3

// FileHit is a path matched by the full-text surface.
type FileHit struct {
	FileID int64
	Path   string
	Rank   float64
}

// SearchSymbolsFTS matches name, qualified name and doc text as a
// substring. Results are ordered by FTS5 rank. Queries shorter than three
// characters fall back to a name prefix scan.
func (r *Reader) SearchSymbolsFTS(ctx context.Context, query string, limit int) ([]SymbolRow, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(query) < minTrigramQuery {
		return r.SymbolsByPrefix(ctx, query, limit)
	}

	b := selectSymbols().
		Join("symbols_fts ON symbols_fts.symbol_id = s.id").
		Where("symbols_fts MATCH ?", BuildFTSQuery(query)).
		OrderBy("symbols_fts.rank")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.querySymbols(ctx, b)
}

// SearchFilesFTS matches file paths as a substring.
func (r *Reader) SearchFilesFTS(ctx context.Context, query string, limit int) ([]FileHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var b sq.SelectBuilder
	if utf8.RuneCountInString(query) < minTrigramQuery {
		b = sq.Select("f.id", "f.path", "0").
			From("files f").
			Where("f.path LIKE ? ESCAPE '\\'", "%"+escapeLike(query)+"%").
			OrderBy("length(f.path)")
	} else {
		b = sq.Select("f.id", "f.path", "files_fts.rank").
			From("files_fts").
			Join("files f ON f.id = files_fts.file_id").
			Where("files_fts MATCH ?", BuildFTSQuery(query)).
			OrderBy("files_fts.rank")
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := b.RunWith(r.q).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search files: %w", err)
	}
	defer rows.Close()

	var out []FileHit
	for rows.Next() {
		var h FileHit
		if err := rows.Scan(&h.FileID, &h.Path, &h.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan file hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AllSymbolNames streams (id, name, qualified name) for building in-memory
// indexes such as the fuzzy matcher.
func (r *Reader) AllSymbolNames(ctx context.Context, fn func(id, name, qualifiedName string) error) error {
	rows, err := r.q.QueryContext(ctx, "SELECT id, name, qualified_name FROM symbols")
	if err != nil {
		return fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name, qn string
		if err := rows.Scan(&id, &name, &qn); err != nil {
			return err
		}
		if err := fn(id, name, qn); err != nil {
			return err
		}
	}
	return rows.Err()
}

// BuildFTSQuery quotes the input as a single FTS5 phrase so operator
// characters in identifiers are matched literally.
func BuildFTSQuery(query string) string {
	return `"` + escapeFTSQuery(query) + `"`
}

// escapeFTSQuery doubles embedded quotes per FTS5 string syntax.
func escapeFTSQuery(query string) string {
	return strings.ReplaceAll(query, `"`, `""`)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
