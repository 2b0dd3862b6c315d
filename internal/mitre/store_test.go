package mitre

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

var longDescription = strings.Repeat("Adversaries may send phishing messages. ", 10)

// testBundle は最小限の enterprise-attack STIX バンドル。
var testBundle = `{
	"type": "bundle",
	"objects": [
		{"type": "x-mitre-tactic", "name": "Initial Access", "x_mitre_shortname": "initial-access",
			"description": "The adversary is trying to get into your network."},
		{"type": "attack-pattern", "name": "Phishing", "description": "` + longDescription + `",
			"x_mitre_platforms": ["Linux", "Windows"],
			"external_references": [{"source_name": "mitre-attack", "external_id": "T1566",
				"url": "https://attack.mitre.org/techniques/T1566"}],
			"kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}]},
		{"type": "attack-pattern", "name": "Spearphishing Attachment", "description": "Sends an attachment.",
			"external_references": [{"source_name": "mitre-attack", "external_id": "T1566.001"}],
			"kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}]},
		{"type": "attack-pattern", "name": "Internal Spearphishing", "description": "Uses phishing internally.",
			"external_references": [{"source_name": "mitre-attack", "external_id": "T1534"}],
			"kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "lateral-movement"}]},
		{"type": "attack-pattern", "name": "User Execution", "description": "Relies on a user opening a phishing link.",
			"external_references": [{"source_name": "mitre-attack", "external_id": "T1204"}],
			"kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "execution"}]},
		{"type": "attack-pattern", "name": "Command and Scripting Interpreter", "description": "Abuse interpreters.",
			"external_references": [{"source_name": "mitre-attack", "external_id": "T1059"}],
			"kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "execution"}]},
		{"type": "attack-pattern", "name": "Old Phishing", "description": "revoked", "revoked": true,
			"external_references": [{"source_name": "mitre-attack", "external_id": "T9999"}]},
		{"type": "attack-pattern", "name": "Deprecated", "description": "x", "x_mitre_deprecated": true,
			"external_references": [{"source_name": "mitre-attack", "external_id": "T9998"}]},
		{"type": "attack-pattern", "name": "No ID", "description": "phishing",
			"external_references": [{"source_name": "capec", "external_id": "CAPEC-1"}]}
	]
}`

// newTestStore は testBundle からデータベースを構築して開く。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mitre.db")
	if _, err := Build(context.Background(), path, strings.NewReader(testBundle), nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuild_Stats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "mitre.db")
	stats, err := Build(context.Background(), path, strings.NewReader(testBundle), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Techniques != 5 {
		t.Errorf("Techniques: got %d, want 5", stats.Techniques)
	}
	if stats.Tactics != 1 {
		t.Errorf("Tactics: got %d, want 1", stats.Tactics)
	}
	if stats.Skipped != 3 {
		t.Errorf("Skipped: got %d, want 3", stats.Skipped)
	}
}

func TestBuild_InvalidBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mitre.db")
	if _, err := Build(context.Background(), path, strings.NewReader("{nope"), nil); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Build(context.Background(), path, strings.NewReader(`{"type":"bundle"}`), nil); err == nil {
		t.Error("expected error for bundle without objects")
	}
}

func TestOpen_MissingDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("expected error for missing database")
	}
}

func TestSearch_RankingAndLimit(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Search(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	// 名前一致（ID 順）→ 説明文一致
	want := []string{"T1534", "T1566", "T1566.001", "T1204"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids: got %v, want %v", ids, want)
	}
}

func TestSearch_ExactIDFirst(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Search(context.Background(), "t1566")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].ID != "T1566" {
		t.Errorf("first: got %s, want T1566", got[0].ID)
	}
}

func TestSearch_CapsAtFive(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Search(context.Background(), "a")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) > MaxSearchResults {
		t.Errorf("len: got %d, want <= %d", len(got), MaxSearchResults)
	}
}

func TestSearch_TruncatesDescription(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Search(context.Background(), "T1566")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	d := got[0].Description
	if !strings.HasSuffix(d, "...") {
		t.Errorf("description should end with ...: %q", d)
	}
	if n := len([]rune(strings.TrimSuffix(d, "..."))); n != 200 {
		t.Errorf("snippet length: got %d, want 200", n)
	}
	if !reflect.DeepEqual(got[0].Platforms, []string{"Linux", "Windows"}) {
		t.Errorf("platforms: got %v", got[0].Platforms)
	}
}

func TestSearch_Idempotent(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Search(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := s.Search(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%v\n%v", first, second)
	}
}

func TestSearch_WildcardIsLiteral(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Search(context.Background(), "%")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len: got %d, want 0", len(got))
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Search(context.Background(), "  "); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestGet_WithTactics(t *testing.T) {
	s := newTestStore(t)

	tech, err := s.Get(context.Background(), " t1566 ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tech.Name != "Phishing" {
		t.Errorf("Name: got %q", tech.Name)
	}
	if tech.Description != longDescription {
		t.Error("Get should return the full description")
	}
	if tech.URL != "https://attack.mitre.org/techniques/T1566" {
		t.Errorf("URL: got %q", tech.URL)
	}
	if !reflect.DeepEqual(tech.Tactics, []string{"initial-access"}) {
		t.Errorf("Tactics: got %v", tech.Tactics)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "T9999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: got %v, want ErrNotFound", err)
	}
	if err.Error() != "Technique not found" {
		t.Errorf("message: got %q", err.Error())
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Errorf("Count: got %d, want 5", n)
	}
}

func TestDownload_SkipsExistingUnlessForced(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(testBundle))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "enterprise-attack.json")

	downloaded, err := Download(context.Background(), srv.Client(), srv.URL, path, false)
	if err != nil || !downloaded {
		t.Fatalf("first Download: downloaded=%v err=%v", downloaded, err)
	}
	downloaded, err = Download(context.Background(), srv.Client(), srv.URL, path, false)
	if err != nil || downloaded {
		t.Fatalf("second Download: downloaded=%v err=%v, want skip", downloaded, err)
	}
	downloaded, err = Download(context.Background(), srv.Client(), srv.URL, path, true)
	if err != nil || !downloaded {
		t.Fatalf("forced Download: downloaded=%v err=%v", downloaded, err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("hits: got %d, want 2", hits)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testBundle {
		t.Error("downloaded content mismatch")
	}
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "bundle.json")
	if _, err := Download(context.Background(), srv.Client(), srv.URL, path, false); err == nil {
		t.Error("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written on error")
	}
}
