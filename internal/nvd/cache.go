package nvd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCacheTTL は NVD レスポンスをキャッシュする期間。
const DefaultCacheTTL = 24 * time.Hour

// Cache は CVE レコードを CVE ID ごとの JSON ファイルに保存する。
// 書き込みは一時ファイル + rename で行い、読み取り側が途中の状態を見ることはない。
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// cacheEntry はキャッシュファイルの中身。
type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Record   json.RawMessage `json:"record"`
}

// NewCache は dir を使う Cache を返す。dir が空ならキャッシュは無効になる。
// ディレクトリが存在しない場合は Put 時に作成する。
func NewCache(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// Get は有効期限内のレコードを返す。期限切れ・未保存・読み取り失敗はすべて miss。
func (c *Cache) Get(id string) (json.RawMessage, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(id))
	if err != nil {
		return nil, false
	}
	var e cacheEntry
	if err := json.Unmarshal(data, &e); err != nil || len(e.Record) == 0 {
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		return nil, false
	}
	return e.Record, true
}

// Put はレコードを保存する。
func (c *Cache) Put(id string, record json.RawMessage) error {
	if c == nil || c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("nvd: cache mkdir: %w", err)
	}
	data, err := json.Marshal(cacheEntry{StoredAt: c.now(), Record: record})
	if err != nil {
		return fmt.Errorf("nvd: cache marshal: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("nvd: cache write %s: %w", id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("nvd: cache write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("nvd: cache write %s: %w", id, err)
	}
	if err := os.Rename(tmpName, c.path(id)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("nvd: cache write %s: %w", id, err)
	}
	return nil
}

func (c *Cache) path(id string) string {
	return filepath.Join(c.dir, sanitizeFilename(id)+".json")
}

// sanitizeFilename はパストラバーサルを防ぐため区切り文字と .. を除去する。
func sanitizeFilename(id string) string {
	id = strings.ReplaceAll(id, "/", "_")
	id = strings.ReplaceAll(id, "\\", "_")
	id = strings.ReplaceAll(id, "..", "_")
	if id == "" {
		id = "unknown"
	}
	return id
}
