package model

import "strings"

// Tag は記事に付与するラベルを表す。
// タグ自体はユーザーに属さず、記事との関連付けを通してのみ参照される。
type Tag struct {
	ID    int64
	Value string
}

// SplitTags はカンマ区切りのタグ文字列を分割する。
// 各要素の前後の空白を除去し、空要素は捨てる。
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			tags = append(tags, v)
		}
	}
	return tags
}
