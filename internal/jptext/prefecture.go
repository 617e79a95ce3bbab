package jptext

import "strings"

// prefectures is the closed set of 47 prefecture names, paired with the
// two-digit codes used by the corporate-number registry search form.
var prefectures = []struct {
	Name string
	Code string
}{
	{"北海道", "01"}, {"青森県", "02"}, {"岩手県", "03"}, {"宮城県", "04"},
	{"秋田県", "05"}, {"山形県", "06"}, {"福島県", "07"}, {"茨城県", "08"},
	{"栃木県", "09"}, {"群馬県", "10"}, {"埼玉県", "11"}, {"千葉県", "12"},
	{"東京都", "13"}, {"神奈川県", "14"}, {"新潟県", "15"}, {"富山県", "16"},
	{"石川県", "17"}, {"福井県", "18"}, {"山梨県", "19"}, {"長野県", "20"},
	{"岐阜県", "21"}, {"静岡県", "22"}, {"愛知県", "23"}, {"三重県", "24"},
	{"滋賀県", "25"}, {"京都府", "26"}, {"大阪府", "27"}, {"兵庫県", "28"},
	{"奈良県", "29"}, {"和歌山県", "30"}, {"鳥取県", "31"}, {"島根県", "32"},
	{"岡山県", "33"}, {"広島県", "34"}, {"山口県", "35"}, {"徳島県", "36"},
	{"香川県", "37"}, {"愛媛県", "38"}, {"高知県", "39"}, {"福岡県", "40"},
	{"佐賀県", "41"}, {"長崎県", "42"}, {"熊本県", "43"}, {"大分県", "44"},
	{"宮崎県", "45"}, {"鹿児島県", "46"}, {"沖縄県", "47"},
}

// ExtractPrefecture returns the prefecture named in the address, or "" when
// none is present. When several names occur, the earliest occurrence wins;
// equal positions are broken by the longer name.
func ExtractPrefecture(address string) string {
	best := ""
	bestIdx := -1
	for _, p := range prefectures {
		idx := strings.Index(address, p.Name)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx || (idx == bestIdx && len(p.Name) > len(best)) {
			best = p.Name
			bestIdx = idx
		}
	}
	return best
}

// PrefectureCode maps a prefecture name to its registry code, or "" when the
// name is not one of the 47.
func PrefectureCode(name string) string {
	for _, p := range prefectures {
		if p.Name == name {
			return p.Code
		}
	}
	return ""
}
