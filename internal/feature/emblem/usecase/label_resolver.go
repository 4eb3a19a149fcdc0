// Package usecase はemblemフィーチャーのビジネスロジックを実装します。
package usecase

import "strings"

// LabelResolver は検出器の生ラベルを表示用の正規名へ変換します。
// 初期化後は読み取り専用のため、複数の実行から同時に参照できます。
type LabelResolver struct {
	table map[string]string
}

// NewLabelResolver は静的テーブルからLabelResolverを生成します。キーは小文字に正規化されます。
func NewLabelResolver(table map[string]string) *LabelResolver {
	t := make(map[string]string, len(table))
	for k, v := range table {
		t[strings.ToLower(k)] = v
	}
	return &LabelResolver{table: t}
}

// Resolve は大文字小文字を区別せずにテーブルを引き、見つからなければ生ラベルをそのまま返します。
func (r *LabelResolver) Resolve(raw string) string {
	if r == nil {
		return raw
	}
	if name, ok := r.table[strings.ToLower(raw)]; ok {
		return name
	}
	return raw
}

// Len はテーブルの件数を返します。
func (r *LabelResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}
