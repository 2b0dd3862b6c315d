package mitre

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultSourceURL は Enterprise ATT&CK の STIX バンドル。
const DefaultSourceURL = "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json"

// Stats は Build の結果件数。
type Stats struct {
	Techniques int
	Tactics    int
	Links      int
	Skipped    int
}

// Download は url の STIX バンドルを path に保存する。
// force が false でファイルが既に存在する場合は何もせず false を返す。
func Download(ctx context.Context, client *http.Client, url, path string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("mitre: create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("mitre: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("mitre: download: status %d", resp.StatusCode)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("mitre: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return false, fmt.Errorf("mitre: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("mitre: write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("mitre: write bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("mitre: write bundle: %w", err)
	}
	return true, nil
}

// Build は STIX バンドルを読み込み、dbPath のデータベースにテクニックとタクティクスを書き込む。
// revoked / deprecated なオブジェクトは除外する。全件を 1 トランザクションで書く。
func Build(ctx context.Context, dbPath string, bundle io.Reader, logger *zap.Logger) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mitre")

	data, err := io.ReadAll(bundle)
	if err != nil {
		return Stats{}, fmt.Errorf("mitre: read bundle: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return Stats{}, fmt.Errorf("mitre: bundle is not valid JSON")
	}
	objects := gjson.GetBytes(data, "objects")
	if !objects.IsArray() {
		return Stats{}, fmt.Errorf("mitre: bundle has no objects array")
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Stats{}, fmt.Errorf("mitre: mkdir: %w", err)
		}
	}
	db, err := openDB(dbPath)
	if err != nil {
		return Stats{}, err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("mitre: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stats Stats
	var execErr error
	exec := func(query string, args ...any) {
		if execErr != nil {
			return
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			execErr = fmt.Errorf("mitre: exec: %w", err)
		}
	}

	objects.ForEach(func(_, obj gjson.Result) bool {
		if obj.Get("revoked").Bool() || obj.Get("x_mitre_deprecated").Bool() {
			stats.Skipped++
			return true
		}

		switch obj.Get("type").String() {
		case "x-mitre-tactic":
			short := obj.Get("x_mitre_shortname").String()
			if short == "" {
				return true
			}
			exec(`INSERT OR REPLACE INTO tactics (name, description) VALUES (?, ?)`,
				short, obj.Get("description").String())
			stats.Tactics++

		case "attack-pattern":
			id, url := attackReference(obj)
			if id == "" {
				stats.Skipped++
				return true
			}
			platforms := "[]"
			if p := obj.Get("x_mitre_platforms"); p.IsArray() {
				platforms = p.Raw
			}
			exec(`INSERT OR REPLACE INTO techniques (mitre_id, name, description, url, platforms) VALUES (?, ?, ?, ?, ?)`,
				id, obj.Get("name").String(), obj.Get("description").String(), url, platforms)
			stats.Techniques++

			obj.Get("kill_chain_phases").ForEach(func(_, phase gjson.Result) bool {
				if phase.Get("kill_chain_name").String() != "mitre-attack" {
					return true
				}
				tactic := phase.Get("phase_name").String()
				exec(`INSERT OR IGNORE INTO tactics (name, description) VALUES (?, '')`, tactic)
				exec(`INSERT OR REPLACE INTO technique_tactics (technique_id, tactic_name) VALUES (?, ?)`, id, tactic)
				stats.Links++
				return true
			})
		}
		return execErr == nil
	})
	if execErr != nil {
		return Stats{}, execErr
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("mitre: build cancelled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("mitre: commit: %w", err)
	}

	logger.Info("database built",
		zap.String("path", dbPath),
		zap.Int("techniques", stats.Techniques),
		zap.Int("tactics", stats.Tactics),
		zap.Int("links", stats.Links),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// attackReference は external_references から mitre-attack の ID と URL を取り出す。
func attackReference(obj gjson.Result) (id, url string) {
	obj.Get("external_references").ForEach(func(_, ref gjson.Result) bool {
		if ref.Get("source_name").String() == "mitre-attack" {
			id = ref.Get("external_id").String()
			url = ref.Get("url").String()
			return false
		}
		return true
	})
	return id, url
}
