// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MarkupDetector は掲示板への投稿本文にHTMLとして解釈されうる部分が含まれるかを判定する。
// 本文そのものは書き換えない。表示時のエスケープはテンプレートが行う。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupDetector は投稿本文のマークアップ判定機能のインターフェースを定義する。
type MarkupDetector interface {
	// ContainsMarkup は本文にタグとして解釈されうる部分が含まれる場合にtrueを返す。
	// 判定は近似であり、"x<y && y>z" のような比較式も該当しうる。
	ContainsMarkup(raw string) bool
}

// markupDetector はMarkupDetectorの実装。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有してよい。
type markupDetector struct {
	policy *bluemonday.Policy
}

// NewMarkupDetector はMarkupDetectorの新しいインスタンスを生成する。
func NewMarkupDetector() *markupDetector {
	return &markupDetector{
		policy: bluemonday.StrictPolicy(),
	}
}

// ContainsMarkup はStrictPolicyを通した結果が元の本文と異なるかで判定する。
func (d *markupDetector) ContainsMarkup(raw string) bool {
	if raw == "" {
		return false
	}
	// StrictPolicyはテキストをHTMLエスケープして返すため、比較前に元に戻す
	return html.UnescapeString(d.policy.Sanitize(raw)) != raw
}

var _ MarkupDetector = (*markupDetector)(nil)
