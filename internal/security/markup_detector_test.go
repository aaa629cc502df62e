package security

import "testing"

// TestContainsMarkup はタグを含む本文のみが検出されることを検証する。
func TestContainsMarkup(t *testing.T) {
	detector := NewMarkupDetector()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "プレーンテキスト", input: "こんにちは", want: false},
		{name: "記号のみ", input: `a & b "quoted" it's`, want: false},
		{name: "改行を含む", input: "1行目\n2行目", want: false},
		{name: "空文字列", input: "", want: false},
		{name: "強調タグ", input: "<strong>太字</strong>", want: true},
		{name: "script要素", input: "<script>alert('xss')</script>本文", want: true},
		{name: "イベント属性", input: `<img src="x" onerror="alert(1)">`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detector.ContainsMarkup(tt.input); got != tt.want {
				t.Errorf("ContainsMarkup(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestContainsMarkup_DoesNotModifyInput は判定が入力を書き換えないことを検証する。
func TestContainsMarkup_DoesNotModifyInput(t *testing.T) {
	detector := NewMarkupDetector()
	input := "use <T any> generics"

	_ = detector.ContainsMarkup(input)
	if input != "use <T any> generics" {
		t.Errorf("input modified: %q", input)
	}
}
