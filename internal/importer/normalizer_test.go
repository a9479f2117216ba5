package importer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/readlater/internal/model"
)

func TestNormalize_RecordList(t *testing.T) {
	payload := `[
		{"article__url": "https://a.test/1", "url": "https://ignored.test", "title": "First", "content": "<p>one</p>", "is_read": 1, "is_fav": "1"},
		{"url": "https://a.test/2", "archive": true, "favorite": 0},
		{"url": "https://a.test/3", "title": null, "is_read": null, "archive": "1", "tags": "go, news"},
		{"title": "no url"},
		"scalar"
	]`

	got, err := NewNormalizer().Normalize([]byte(payload))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.Format != model.ImportFormatRecordList {
		t.Errorf("Format = %q, want %q", got.Format, model.ImportFormatRecordList)
	}

	want := []model.ImportRecord{
		{URL: "https://a.test/1", Title: "First", Body: "<p>one</p>", IsRead: true, IsFavorite: true},
		{URL: "https://a.test/2", IsRead: true},
		{URL: "https://a.test/3", IsRead: true, Tags: []string{"go", "news"}},
	}
	if !reflect.DeepEqual(got.Records, want) {
		t.Errorf("Records =\n%+v\nwant\n%+v", got.Records, want)
	}
	if got.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", got.Skipped)
	}
}

func TestNormalize_NestedArraysAndWrapperObject(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantURLs []string
	}{
		{
			name:     "配列の中の配列",
			payload:  `[{"url":"https://a.test/1"},[{"url":"https://a.test/2"},{"url":"https://a.test/3"}]]`,
			wantURLs: []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"},
		},
		{
			name:     "ラッパーオブジェクト",
			payload:  `{"version": 2, "articles": [{"url":"https://a.test/1"}], "archived": [{"url":"https://a.test/2","is_read":1}]}`,
			wantURLs: []string{"https://a.test/1", "https://a.test/2"},
		},
		{
			name:     "空配列",
			payload:  `[]`,
			wantURLs: nil,
		},
		{
			name:     "エクスポート形式",
			payload:  `[{"id":3,"url":"https://a.test/x","title":"X","content":"","is_read":0,"is_fav":1,"tags":["go"],"created_at":"2024-01-01T00:00:00Z"}]`,
			wantURLs: []string{"https://a.test/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewNormalizer().Normalize([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			var urls []string
			for _, r := range got.Records {
				urls = append(urls, r.URL)
			}
			if !reflect.DeepEqual(urls, tt.wantURLs) {
				t.Errorf("URLs = %v, want %v", urls, tt.wantURLs)
			}
		})
	}
}

func TestNormalize_BookmarkListAlternation(t *testing.T) {
	payload := `<!DOCTYPE html>
<html><body>
<h1>Unread</h1>
<ul>
  <li><a href="https://b.test/1" tags="go,web">one</a></li>
  <li><a href=" https://b.test/2 ">two</a></li>
  <li>no link here</li>
</ul>
<h1>Read</h1>
<ol>
  <li><a href="https://b.test/3">three</a>
    <ul><li><a href="https://b.test/4">nested</a></li></ul>
  </li>
</ol>
<ul>
  <li><a href="https://b.test/5">five</a></li>
</ul>
</body></html>`

	got, err := NewNormalizer().Normalize([]byte(payload))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.Format != model.ImportFormatBookmarkList {
		t.Errorf("Format = %q, want %q", got.Format, model.ImportFormatBookmarkList)
	}

	want := []model.ImportRecord{
		{URL: "https://b.test/1", Tags: []string{"go", "web"}},
		{URL: "https://b.test/2", Tags: []string{}},
		{URL: "https://b.test/3", IsRead: true, Tags: []string{}},
		{URL: "https://b.test/4", IsRead: true, Tags: []string{}},
		{URL: "https://b.test/5", Tags: []string{}},
	}
	if !reflect.DeepEqual(got.Records, want) {
		t.Errorf("Records =\n%+v\nwant\n%+v", got.Records, want)
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", got.Skipped)
	}
}

// TestNormalize_BookmarkListLeadingEmptyLists はレコードが得られるまで未読への切り替えが起きないことを検証する。
func TestNormalize_BookmarkListLeadingEmptyLists(t *testing.T) {
	payload := `<html><body>
<ul></ul>
<ul><li>no link</li></ul>
<ul><li><a href="https://c.test/1">one</a></li></ul>
<ol><li><a href="https://c.test/2">two</a></li></ol>
<ul><li><a href="https://c.test/3">three</a></li></ul>
</body></html>`

	got, err := NewNormalizer().Normalize([]byte(payload))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	want := []model.ImportRecord{
		{URL: "https://c.test/1", IsRead: true, Tags: []string{}},
		{URL: "https://c.test/2", Tags: []string{}},
		{URL: "https://c.test/3", IsRead: true, Tags: []string{}},
	}
	if !reflect.DeepEqual(got.Records, want) {
		t.Errorf("Records =\n%+v\nwant\n%+v", got.Records, want)
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", got.Skipped)
	}
}

func TestNormalize_ParseFailed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "空", payload: ""},
		{name: "空白のみ", payload: "  \n\t "},
		{name: "壊れたJSON", payload: `[{"url": "https://a.test"`},
		{name: "リストの無いHTML", payload: `<html><body><p>hello</p></body></html>`},
		{name: "JSONのスカラー", payload: `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer().Normalize([]byte(tt.payload))
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeImportParseFailed {
				t.Errorf("error = %v, want IMPORT_PARSE_FAILED", err)
			}
		})
	}
}

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`1`, true},
		{`0`, false},
		{`2`, true},
		{`true`, true},
		{`false`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`"true"`, true},
		{`"yes"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f flag
			if err := f.UnmarshalJSON([]byte(tt.input)); err != nil {
				t.Fatalf("UnmarshalJSON returned error: %v", err)
			}
			if bool(f) != tt.want {
				t.Errorf("flag(%s) = %v, want %v", tt.input, f, tt.want)
			}
		})
	}

	var f flag
	if err := f.UnmarshalJSON([]byte(`{}`)); err == nil {
		t.Error("オブジェクトはエラーになるべき")
	}
}
