package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/hitoshi/readlater/internal/model"
)

// feedContentTypes はフィードとして扱うContent-Type。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/rdf+xml",
}

// xmlContentTypes はボディを検査してフィードか判定するContent-Type。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// isFeedDocument はレスポンスがRSS/Atomフィードかどうかを判定する。
// Content-Typeが不明または汎用XMLの場合はボディ先頭を検査する。
func isFeedDocument(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, ct := range feedContentTypes {
		if mediaType == ct {
			return true
		}
	}
	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		return false
	}

	sniff := mediaType == ""
	for _, ct := range xmlContentTypes {
		if mediaType == ct {
			sniff = true
			break
		}
	}
	return sniff && looksLikeFeed(body)
}

// looksLikeFeed はボディ先頭4KBにRSS/RDF/Atomのルート要素があるかを検査する。
func looksLikeFeed(body []byte) bool {
	n := len(body)
	if n > 4096 {
		n = 4096
	}
	prefix := strings.ToLower(string(body[:n]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// extractFromFeed はフィード文書から最初のItemのタイトルと本文を取り出す。
// Itemが無い場合はチャンネル自体のタイトルと説明文を使う。
func extractFromFeed(body []byte) (*model.ExtractedContent, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗: %w", err)
	}

	out := &model.ExtractedContent{
		Title: normalizeTitle(feed.Title),
		Body:  strings.TrimSpace(feed.Description),
	}

	if len(feed.Items) > 0 {
		item := feed.Items[0]
		if t := normalizeTitle(item.Title); t != "" {
			out.Title = t
		}
		switch {
		case strings.TrimSpace(item.Content) != "":
			out.Body = strings.TrimSpace(item.Content)
		case strings.TrimSpace(item.Description) != "":
			out.Body = strings.TrimSpace(item.Description)
		}
	}
	return out, nil
}

// extractFromHTML はHTMLページから本文領域を抽出する。
// readabilityで得られなかったタイトルと本文はOGP等のメタ情報で補う。
func extractFromHTML(body []byte, contentType string, pageURL *url.URL) (*model.ExtractedContent, error) {
	utf8Body, err := toUTF8(body, contentType)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8Body))
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗: %w", err)
	}

	out := &model.ExtractedContent{}

	// readabilityが失敗してもメタ情報からの抽出は続ける
	article, err := readability.FromReader(bytes.NewReader(utf8Body), pageURL)
	if err == nil {
		out.Title = normalizeTitle(article.Title)
		out.Body = strings.TrimSpace(article.Content)
	}

	if out.Title == "" {
		out.Title = metaTitle(doc)
	}
	if out.Body == "" {
		if desc := metaDescription(doc); desc != "" {
			out.Body = "<p>" + html.EscapeString(desc) + "</p>"
		}
	}
	return out, nil
}

// toUTF8 はContent-Typeとmetaタグの文字コード宣言に従ってボディをUTF-8に変換する。
func toUTF8(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("文字コードの判定に失敗: %w", err)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("文字コードの変換に失敗: %w", err)
	}
	return converted, nil
}

// metaTitle は og:title, twitter:title, title, h1 の順にタイトルを探す。
func metaTitle(doc *goquery.Document) string {
	candidates := []string{
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	}
	for _, c := range candidates {
		if t := normalizeTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// metaDescription は og:description, description の順に説明文を探す。
func metaDescription(doc *goquery.Document) string {
	if d := strings.TrimSpace(metaContent(doc, `meta[property="og:description"]`)); d != "" {
		return d
	}
	return strings.TrimSpace(metaContent(doc, `meta[name="description"]`))
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return v
}

// normalizeTitle は改行や連続した空白を1つの空白にまとめる。
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
