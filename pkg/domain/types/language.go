package types

// LanguageCode is an ISO 639-1 code of a language the platform can serve
type LanguageCode string

const (
	LanguageEnglish   LanguageCode = "en"
	LanguageHindi     LanguageCode = "hi"
	LanguageBengali   LanguageCode = "bn"
	LanguagePunjabi   LanguageCode = "pa"
	LanguageGujarati  LanguageCode = "gu"
	LanguageOdia      LanguageCode = "or"
	LanguageTamil     LanguageCode = "ta"
	LanguageTelugu    LanguageCode = "te"
	LanguageKannada   LanguageCode = "kn"
	LanguageMalayalam LanguageCode = "ml"
	LanguageMarathi   LanguageCode = "mr"
	LanguageUrdu      LanguageCode = "ur"
	LanguageAssamese  LanguageCode = "as"
)

// DefaultLanguage is the working language of the models
const DefaultLanguage = LanguageEnglish

// AllLanguageCodes returns every supported language code
func AllLanguageCodes() []LanguageCode {
	return []LanguageCode{
		LanguageEnglish,
		LanguageHindi,
		LanguageBengali,
		LanguagePunjabi,
		LanguageGujarati,
		LanguageOdia,
		LanguageTamil,
		LanguageTelugu,
		LanguageKannada,
		LanguageMalayalam,
		LanguageMarathi,
		LanguageUrdu,
		LanguageAssamese,
	}
}

// IsSupported checks if the language is in the supported set
func (l LanguageCode) IsSupported() bool {
	for _, code := range AllLanguageCodes() {
		if code == l {
			return true
		}
	}
	return false
}

// OrDefault returns l, or DefaultLanguage when l is empty
func (l LanguageCode) OrDefault() LanguageCode {
	if l == "" {
		return DefaultLanguage
	}
	return l
}

// String returns the string representation of the language code
func (l LanguageCode) String() string {
	return string(l)
}
