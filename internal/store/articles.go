package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/newthinker/aurum/internal/core"
)

const articleColumns = `id, source, title, published_at, content, keywords, image_url, status, is_alerted, created_at`

// InsertArticle stores a new article. An existing id is left untouched and
// inserted is false.
func (db *DB) InsertArticle(ctx context.Context, a Article) (bool, error) {
	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return false, db.fail("insert article", err)
	}

	var inserted bool
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO articles (`+articleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			a.ID, a.Source, a.Title, core.FormatUTC(a.PublishedAt), a.Content,
			string(keywords), nullString(a.ImageURL), core.ArticleNew, db.nowUTC(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("insert article", err)
	}
	return inserted, nil
}

// ArticleExists reports whether an article with the given id is stored.
func (db *DB) ArticleExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, db.fail("article exists", err)
	}
	return true, nil
}

// UnprocessedArticles returns NEW articles, newest first. A limit of zero
// or less returns all of them.
func (db *DB) UnprocessedArticles(ctx context.Context, limit int) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE status = ? ORDER BY published_at DESC, id`
	args := []any{core.ArticleNew}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	articles, err := db.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, db.fail("unprocessed articles", err)
	}
	return articles, nil
}

// MarkProcessed moves NEW articles to PROCESSED and returns how many rows
// actually changed.
func (db *DB) MarkProcessed(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, core.ArticleProcessed, core.ArticleNew)
	for _, id := range ids {
		args = append(args, id)
	}

	var changed int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE articles SET status = ? WHERE status = ? AND id IN (`+placeholders+`)`, args...)
		if err != nil {
			return err
		}
		changed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, db.fail("mark processed", err)
	}
	return changed, nil
}

// UnalertedNews returns NEW articles that have not been alerted and were
// stored within the lookback window, newest first.
func (db *DB) UnalertedNews(ctx context.Context, lookback time.Duration) ([]Article, error) {
	cutoff := core.FormatUTC(db.now().Add(-lookback))
	articles, err := db.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE status = ? AND is_alerted = 0 AND created_at >= ?
		 ORDER BY published_at DESC, id`,
		core.ArticleNew, cutoff)
	if err != nil {
		return nil, db.fail("unalerted news", err)
	}
	return articles, nil
}

// MarkAlerted flips is_alerted from 0 to 1. It returns false when the
// article was already alerted or does not exist.
func (db *DB) MarkAlerted(ctx context.Context, id string) (bool, error) {
	var changed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE articles SET is_alerted = 1 WHERE id = ? AND is_alerted = 0`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n > 0
		return err
	})
	if err != nil {
		return false, db.fail("mark alerted", err)
	}
	return changed, nil
}

func (db *DB) queryArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			a         Article
			source    sql.NullString
			published sql.NullString
			content   sql.NullString
			keywords  sql.NullString
			image     sql.NullString
			status    string
			alerted   int
			created   sql.NullString
		)
		if err := rows.Scan(&a.ID, &source, &a.Title, &published, &content, &keywords, &image, &status, &alerted, &created); err != nil {
			return nil, err
		}
		a.Source = source.String
		a.PublishedAt = parseTime(published)
		a.Content = content.String
		a.ImageURL = image.String
		a.Status = core.ArticleStatus(status)
		a.IsAlerted = alerted == 1
		a.CreatedAt = parseTime(created)
		if keywords.Valid && keywords.String != "" {
			_ = json.Unmarshal([]byte(keywords.String), &a.Keywords)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
