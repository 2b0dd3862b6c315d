package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/0x6d61/vulnbot/internal/mitre"
)

// CVELookup は CVE レコードを取得する外部コラボレーター（nvd.Client）。
type CVELookup interface {
	GetCVE(ctx context.Context, id string) (json.RawMessage, error)
}

// TechniqueLookup は ATT&CK テクニックの検索・参照を行う外部コラボレーター（mitre.Store）。
type TechniqueLookup interface {
	Search(ctx context.Context, query string) ([]mitre.Summary, error)
	Get(ctx context.Context, id string) (*mitre.Technique, error)
}

// 組み込みツール名
const (
	ToolGetCVE           = "get_cve"
	ToolSearchTechniques = "search_mitre_techniques"
	ToolGetTechnique     = "get_mitre_technique"
)

// RegisterLookups は CVE / ATT&CK の組み込みツールを登録する。nil のコラボレーターはスキップする。
func RegisterLookups(r *Registry, cves CVELookup, techniques TechniqueLookup) error {
	if cves != nil {
		err := r.Register(Descriptor{
			Name:        ToolGetCVE,
			Description: "Fetch details for a specific CVE ID (e.g. CVE-2021-44228) from the NVD. Returns CVSS metrics, descriptions, weaknesses and affected configurations.",
			InputSchema: objectSchema("cve_id", "The CVE ID to look up, e.g. CVE-2021-44228."),
		}, func(ctx context.Context, args map[string]any) (any, error) {
			id, err := stringArg(args, "cve_id")
			if err != nil {
				return nil, err
			}
			return cves.GetCVE(ctx, id)
		})
		if err != nil {
			return err
		}
	}

	if techniques == nil {
		return nil
	}
	err := r.Register(Descriptor{
		Name:        ToolSearchTechniques,
		Description: "Search MITRE ATT&CK techniques by keyword or ID (e.g. 'phishing', 'T1059'). Returns up to 5 matches with truncated descriptions.",
		InputSchema: objectSchema("query", "The search keyword or technique ID."),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		q, err := stringArg(args, "query")
		if err != nil {
			return nil, err
		}
		return techniques.Search(ctx, q)
	})
	if err != nil {
		return err
	}

	return r.Register(Descriptor{
		Name:        ToolGetTechnique,
		Description: "Get full details for a specific MITRE ATT&CK technique ID (e.g. T1059), including platforms and tactics.",
		InputSchema: objectSchema("mitre_id", "The technique ID, e.g. T1059 or T1566.001."),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		// 旧名の technique_id も受け付ける
		id, err := stringArg(args, "mitre_id", "technique_id")
		if err != nil {
			return nil, err
		}
		return techniques.Get(ctx, id)
	})
}

func objectSchema(param, desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			param: map[string]any{"type": "string", "description": desc},
		},
		"required": []string{param},
	}
}

// stringArg は keys の順に最初に見つかった空でない文字列引数を返す。
func stringArg(args map[string]any, keys ...string) (string, error) {
	for _, k := range keys {
		v, ok := args[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("argument %s must be a string, got %T", k, v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("missing required argument: %s", keys[0])
}
