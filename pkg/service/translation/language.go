package translation

import (
	"unicode"

	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"golang.org/x/text/unicode/norm"
)

// Language describes a supported language
type Language struct {
	Code       types.LanguageCode `json:"code"`
	Name       string             `json:"name"`
	NativeName string             `json:"native_name"`
	// Script is the FLORES-200 style tag, e.g. hin_Deva
	Script string `json:"script"`

	ranges *unicode.RangeTable
}

var latinLetters = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 'A', Hi: 'Z', Stride: 1},
		{Lo: 'a', Hi: 'z', Stride: 1},
		{Lo: 0x00C0, Hi: 0x024F, Stride: 1},
	},
}

func block(lo, hi uint16) *unicode.RangeTable {
	return &unicode.RangeTable{R16: []unicode.Range16{{Lo: lo, Hi: hi, Stride: 1}}}
}

var (
	devanagari = block(0x0900, 0x097F)
	bengali    = block(0x0980, 0x09FF)
	arabic     = &unicode.RangeTable{R16: []unicode.Range16{
		{Lo: 0x0600, Hi: 0x06FF, Stride: 1},
		{Lo: 0x0750, Hi: 0x077F, Stride: 1},
	}}
)

// languages is ordered; detection ties go to the earlier entry
var languages = []Language{
	{Code: types.LanguageEnglish, Name: "English", NativeName: "English", Script: "eng_Latn", ranges: latinLetters},
	{Code: types.LanguageHindi, Name: "Hindi", NativeName: "हिन्दी", Script: "hin_Deva", ranges: devanagari},
	{Code: types.LanguageBengali, Name: "Bengali", NativeName: "বাংলা", Script: "ben_Beng", ranges: bengali},
	{Code: types.LanguagePunjabi, Name: "Punjabi", NativeName: "ਪੰਜਾਬੀ", Script: "pan_Guru", ranges: block(0x0A00, 0x0A7F)},
	{Code: types.LanguageGujarati, Name: "Gujarati", NativeName: "ગુજરાતી", Script: "guj_Gujr", ranges: block(0x0A80, 0x0AFF)},
	{Code: types.LanguageOdia, Name: "Odia", NativeName: "ଓଡ଼ିଆ", Script: "ory_Orya", ranges: block(0x0B00, 0x0B7F)},
	{Code: types.LanguageTamil, Name: "Tamil", NativeName: "தமிழ்", Script: "tam_Taml", ranges: block(0x0B80, 0x0BFF)},
	{Code: types.LanguageTelugu, Name: "Telugu", NativeName: "తెలుగు", Script: "tel_Telu", ranges: block(0x0C00, 0x0C7F)},
	{Code: types.LanguageKannada, Name: "Kannada", NativeName: "ಕನ್ನಡ", Script: "kan_Knda", ranges: block(0x0C80, 0x0CFF)},
	{Code: types.LanguageMalayalam, Name: "Malayalam", NativeName: "മലയാളം", Script: "mal_Mlym", ranges: block(0x0D00, 0x0D7F)},
	{Code: types.LanguageMarathi, Name: "Marathi", NativeName: "मराठी", Script: "mar_Deva", ranges: devanagari},
	{Code: types.LanguageUrdu, Name: "Urdu", NativeName: "اردو", Script: "urd_Arab", ranges: arabic},
	{Code: types.LanguageAssamese, Name: "Assamese", NativeName: "অসমীয়া", Script: "asm_Beng", ranges: bengali},
}

// SupportedLanguages returns the supported languages in detection order
func SupportedLanguages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LookupLanguage returns the table entry of code
func LookupLanguage(code types.LanguageCode) (Language, bool) {
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// DetectLanguage guesses the language of text from the Unicode blocks of its letters.
// Languages sharing a script (hi/mr, bn/as) resolve to the one listed first, and text
// without any recognized letter is English.
func DetectLanguage(text string) types.LanguageCode {
	counts := make([]int, len(languages))
	for _, r := range norm.NFKC.String(text) {
		for i, l := range languages {
			if unicode.Is(l.ranges, r) {
				counts[i]++
			}
		}
	}

	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return types.DefaultLanguage
	}
	return languages[best].Code
}
