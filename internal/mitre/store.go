// Package mitre は MITRE ATT&CK Enterprise のテクニックをローカル SQLite に格納し、検索・参照する。
package mitre

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

const (
	// MaxSearchResults は Search が返す最大件数。
	MaxSearchResults = 5
	// snippetLen は Search 結果の description を切り詰める文字数。
	snippetLen = 200
)

// ErrNotFound はテクニックが存在しないことを示す。
var ErrNotFound = errors.New("Technique not found")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS techniques (
	mitre_id    TEXT PRIMARY KEY,
	name        TEXT,
	description TEXT,
	url         TEXT,
	platforms   TEXT
);
CREATE TABLE IF NOT EXISTS tactics (
	name        TEXT PRIMARY KEY,
	description TEXT
);
CREATE TABLE IF NOT EXISTS technique_tactics (
	technique_id TEXT,
	tactic_name  TEXT,
	PRIMARY KEY (technique_id, tactic_name)
);
CREATE INDEX IF NOT EXISTS idx_techniques_name ON techniques(name);
`

// Summary は検索結果 1 件。description は切り詰め済み。
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
	Platforms   []string `json:"platforms"`
}

// Technique はテクニックの完全なレコード。
type Technique struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
	Platforms   []string `json:"platforms"`
	Tactics     []string `json:"tactics"`
}

// Store は読み取り専用のテクニックストア。複数セッションから並行に使ってよい。
type Store struct {
	db *sql.DB
}

// Open は構築済みのデータベースを開く。ファイルがなければエラーを返す。
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mitre: database not found at %s (run `vulnbot init`): %w", path, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mitre: open %s: %w", path, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mitre: init schema: %w", err)
	}
	return db, nil
}

// Close はデータベースを閉じる。
func (s *Store) Close() error { return s.db.Close() }

// Search は ID・名前・説明文の部分一致（大文字小文字を区別しない）で検索する。
// 並び順は ID 完全一致 → ID/名前一致 → 説明文一致、同順位は ID 順。最大 MaxSearchResults 件。
func (s *Store) Search(ctx context.Context, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	like := "%" + escapeLike(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT mitre_id, name, description, url, platforms,
			CASE
				WHEN upper(mitre_id) = upper(?1) THEN 0
				WHEN mitre_id LIKE ?2 ESCAPE '\' OR name LIKE ?2 ESCAPE '\' THEN 1
				ELSE 2
			END AS rank
		FROM techniques
		WHERE mitre_id LIKE ?2 ESCAPE '\'
			OR name LIKE ?2 ESCAPE '\'
			OR description LIKE ?2 ESCAPE '\'
		ORDER BY rank, mitre_id
		LIMIT ?3`, query, like, MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("mitre: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			desc, url sql.NullString
			platforms sql.NullString
			rank      int
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &desc, &url, &platforms, &rank); err != nil {
			return nil, fmt.Errorf("mitre: scan: %w", err)
		}
		sum.Description = snippet(desc.String)
		sum.URL = url.String
		sum.Platforms = decodePlatforms(platforms.String)
		results = append(results, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mitre: search: %w", err)
	}
	return results, nil
}

// Get は ID に一致するテクニックを返す。見つからなければ ErrNotFound。
func (s *Store) Get(ctx context.Context, id string) (*Technique, error) {
	id = strings.ToUpper(strings.TrimSpace(id))

	var (
		t         Technique
		desc, url sql.NullString
		platforms sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT mitre_id, name, description, url, platforms FROM techniques WHERE mitre_id = ?`, id,
	).Scan(&t.ID, &t.Name, &desc, &url, &platforms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mitre: get %s: %w", id, err)
	}
	t.Description = desc.String
	t.URL = url.String
	t.Platforms = decodePlatforms(platforms.String)

	rows, err := s.db.QueryContext(ctx,
		`SELECT tactic_name FROM technique_tactics WHERE technique_id = ? ORDER BY tactic_name`, id)
	if err != nil {
		return nil, fmt.Errorf("mitre: tactics for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	t.Tactics = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mitre: scan tactic: %w", err)
		}
		t.Tactics = append(t.Tactics, name)
	}
	return &t, rows.Err()
}

// Count は格納済みテクニック数を返す。
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM techniques`).Scan(&n); err != nil {
		return 0, fmt.Errorf("mitre: count: %w", err)
	}
	return n, nil
}

// snippet は description を snippetLen 文字で切り詰め、切った場合は "..." を付ける。
func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLen {
		return s
	}
	return string([]rune(s)[:snippetLen]) + "..."
}

func decodePlatforms(raw string) []string {
	platforms := []string{}
	if raw == "" {
		return platforms
	}
	_ = json.Unmarshal([]byte(raw), &platforms)
	if platforms == nil {
		platforms = []string{}
	}
	return platforms
}

// escapeLike は LIKE のワイルドカードを文字として扱うようエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
