// Package importer はインポートファイルの正規化と記事の一括挿入を提供する。
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/readlater/internal/model"
)

// Normalized はインポートファイルの正規化結果を表す。
type Normalized struct {
	Format  model.ImportFormat
	Records []model.ImportRecord
	Skipped int // 解釈できなかった、またはURLが無かったレコード数
}

// Normalizer は形式の不明なインポートファイルをImportRecordの列に変換する。
type Normalizer struct{}

// NewNormalizer はNormalizerを生成する。
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize はまずJSONのレコード配列として解釈し、失敗した場合は
// ol/ulのリンクリストを含むHTMLとして解釈する。
// どちらの形式でもない場合はIMPORT_PARSE_FAILEDを返す。
func (n *Normalizer) Normalize(payload []byte) (*Normalized, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, model.NewImportParseFailedError()
	}

	if result, ok := parseRecordList(payload); ok {
		return result, nil
	}

	result, err := parseBookmarkList(payload)
	if err != nil {
		return nil, model.NewImportParseFailedError()
	}
	return result, nil
}

// parseRecordList はJSONのレコード配列を解釈する。
//
// 配列の要素がオブジェクトならそれをレコードとし、配列なら
// その中のオブジェクトをレコードとする（1段階のみ）。
// トップレベルがオブジェクトの場合は、配列値を持つメンバーの要素を順に扱う。
func parseRecordList(payload []byte) (*Normalized, bool) {
	var elements []json.RawMessage

	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &elements); err != nil {
			return nil, false
		}
	case '{':
		members, err := objectMembers(payload)
		if err != nil {
			return nil, false
		}
		for _, m := range members {
			var nested []json.RawMessage
			if kindOf(m) == '[' && json.Unmarshal(m, &nested) == nil {
				elements = append(elements, nested...)
			}
		}
	default:
		return nil, false
	}

	result := &Normalized{Format: model.ImportFormatRecordList}
	for _, el := range elements {
		switch kindOf(el) {
		case '{':
			result.add(el)
		case '[':
			var nested []json.RawMessage
			if err := json.Unmarshal(el, &nested); err != nil {
				result.Skipped++
				continue
			}
			for _, inner := range nested {
				if kindOf(inner) == '{' {
					result.add(inner)
				}
			}
		default:
			result.Skipped++
		}
	}
	return result, true
}

func (r *Normalized) add(raw json.RawMessage) {
	var rr rawRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		r.Skipped++
		return
	}
	rec, ok := rr.toRecord()
	if !ok {
		r.Skipped++
		return
	}
	r.Records = append(r.Records, rec)
}

// objectMembers はJSONオブジェクトのメンバー値を出現順に返す。
func objectMembers(payload []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var members []json.RawMessage
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after object")
	}
	return members, nil
}

func kindOf(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// parseBookmarkList はol/ulのリンクリストを含むHTMLを解釈する。
//
// 他のリストに含まれないリストを文書順に読み、最初のリストを未読として扱う。
// リストを1つ読むごとに未読と既読を切り替えるが、それまでに1件もレコードが
// 得られていない場合は既読のままとする。先頭に空のリストが並ぶ文書では
// 2番目以降のリストがすべて既読になる。
func parseBookmarkList(payload []byte) (*Normalized, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗しました: %w", err)
	}

	blocks := doc.Find("ol, ul").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("ol, ul").Length() == 0
	})
	if blocks.Length() == 0 {
		return nil, fmt.Errorf("リンクリストが見つかりません")
	}

	result := &Normalized{Format: model.ImportFormatBookmarkList}
	read := false
	blocks.Each(func(_ int, block *goquery.Selection) {
		block.Find("li").Each(func(_ int, li *goquery.Selection) {
			a := li.Find("a").First()
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if href == "" {
				result.Skipped++
				return
			}
			result.Records = append(result.Records, model.ImportRecord{
				URL:    href,
				IsRead: read,
				Tags:   model.SplitTags(a.AttrOr("tags", "")),
			})
		})
		read = len(result.Records) == 0 || !read
	})
	return result, nil
}
