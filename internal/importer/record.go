package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/readlater/internal/model"
)

// rawRecord はJSONインポートファイル中の1レコードを表す。
// エクスポート元のサービスによってキー名が異なるため、別名をすべて受け付ける。
// JSONのnullはnilとなり、キーが無い場合と同じに扱う。
type rawRecord struct {
	ArticleURL *string  `json:"article__url"`
	URL        *string  `json:"url"`
	Title      *string  `json:"title"`
	Content    *string  `json:"content"`
	IsRead     *flag    `json:"is_read"`
	Archive    *flag    `json:"archive"`
	IsFav      *flag    `json:"is_fav"`
	Favorite   *flag    `json:"favorite"`
	Tags       *tagList `json:"tags"`
}

// toRecord は別名の優先順位に従ってImportRecordへ変換する。
// URLが無いレコードはokがfalseになる。
func (r *rawRecord) toRecord() (model.ImportRecord, bool) {
	url := strings.TrimSpace(firstString(r.ArticleURL, r.URL))
	if url == "" {
		return model.ImportRecord{}, false
	}

	rec := model.ImportRecord{
		URL:        url,
		Title:      strings.TrimSpace(firstString(r.Title)),
		Body:       firstString(r.Content),
		IsRead:     firstFlag(r.IsRead, r.Archive),
		IsFavorite: firstFlag(r.IsFav, r.Favorite),
	}
	if r.Tags != nil {
		rec.Tags = []string(*r.Tags)
	}
	return rec, true
}

// firstString は最初に存在する値を返す。
// 先に存在するキーは値が空文字列でも優先する。
func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func firstFlag(values ...*flag) bool {
	for _, v := range values {
		if v != nil {
			return bool(*v)
		}
	}
	return false
}

// flag は0/1の数値、真偽値、数値文字列のいずれでも表される状態フラグ。
// 0以外の数値を真とする。解釈できない文字列は偽とする。
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*f = true
		return nil
	case bytes.Equal(data, []byte("false")):
		*f = false
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flag(parseFlagString(s))
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %s", data)
	}
	*f = n != 0
	return nil
}

func parseFlagString(s string) bool {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// tagList はカンマ区切りの文字列または文字列の配列で表されるタグ一覧。
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*t = tagList(model.SplitTags(strings.Join(values, ",")))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = tagList(model.SplitTags(s))
	return nil
}
