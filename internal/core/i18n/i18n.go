package i18n

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yml
var localesFS embed.FS

// Translations holds all translation strings organized by section
type Translations struct {
	Download DownloadTranslations `yaml:"download"`
	Errors   ErrorTranslations    `yaml:"errors"`
	Info     InfoTranslations     `yaml:"info"`
	List     ListTranslations     `yaml:"list"`
	Config   ConfigTranslations   `yaml:"config"`
	Server   ServerTranslations   `yaml:"server"`
	Help     HelpTranslations     `yaml:"help"`
}

type DownloadTranslations struct {
	Resolving   string `yaml:"resolving"`
	Queued      string `yaml:"queued"`
	Downloading string `yaml:"downloading"`
	Completed   string `yaml:"completed"`
	Failed      string `yaml:"failed"`
	Cancelled   string `yaml:"cancelled"`
	Cancelling  string `yaml:"cancelling"`
	CancelHint  string `yaml:"cancel_hint"`
	Progress    string `yaml:"progress"`
	Speed       string `yaml:"speed"`
	ETA         string `yaml:"eta"`
	Elapsed     string `yaml:"elapsed"`
	AvgSpeed    string `yaml:"avg_speed"`
	FileSaved   string `yaml:"file_saved"`
	Quality     string `yaml:"quality"`
	Summary     string `yaml:"summary"`
}

type ErrorTranslations struct {
	UnsupportedURL   string `yaml:"unsupported_url"`
	Connectivity     string `yaml:"connectivity"`
	Timeout          string `yaml:"timeout"`
	Network          string `yaml:"network"`
	NoMedia          string `yaml:"no_media"`
	TweetNSFW        string `yaml:"tweet_nsfw"`
	TweetProtected   string `yaml:"tweet_protected"`
	TweetUnavailable string `yaml:"tweet_unavailable"`
	DownloadFailed   string `yaml:"download_failed"`
}

type InfoTranslations struct {
	Title     string `yaml:"title"`
	Author    string `yaml:"author"`
	Duration  string `yaml:"duration"`
	Platform  string `yaml:"platform"`
	Qualities string `yaml:"qualities"`
}

type ListTranslations struct {
	Empty    string `yaml:"empty"`
	Total    string `yaml:"total"`
	ByStatus string `yaml:"by_status"`
	ByPlat   string `yaml:"by_platform"`
	Formats  string `yaml:"formats"`
}

type ConfigTranslations struct {
	Saved         string `yaml:"saved"`
	AlreadyExists string `yaml:"already_exists"`
	Cancelled     string `yaml:"cancelled"`
	StepOf        string `yaml:"step_of"`
	Language      string `yaml:"language"`
	LanguageDesc  string `yaml:"language_desc"`
	OutputDir     string `yaml:"output_dir"`
	OutputDirDesc string `yaml:"output_dir_desc"`
	Quality       string `yaml:"quality"`
	QualityDesc   string `yaml:"quality_desc"`
	Sink          string `yaml:"sink"`
	SinkDesc      string `yaml:"sink_desc"`
	SinkFile      string `yaml:"sink_file"`
	Confirm       string `yaml:"confirm"`
	ConfirmDesc   string `yaml:"confirm_desc"`
	YesSave       string `yaml:"yes_save"`
	NoCancel      string `yaml:"no_cancel"`
	Best          string `yaml:"best"`
	Recommended   string `yaml:"recommended"`
}

// HelpTranslations are the key hints shown at the bottom of TUIs.
type HelpTranslations struct {
	Back    string `yaml:"back"`
	Next    string `yaml:"next"`
	Select  string `yaml:"select"`
	Confirm string `yaml:"confirm"`
	Quit    string `yaml:"quit"`
}

type ServerTranslations struct {
	NoConfigWarning string `yaml:"no_config_warning" json:"no_config_warning"`
	RunInitHint     string `yaml:"run_init_hint" json:"run_init_hint"`
}

var (
	translationsCache = make(map[string]*Translations)
	cacheMutex        sync.RWMutex
	defaultLang       = "en"
)

// SupportedLanguages returns all available language codes
var SupportedLanguages = []struct {
	Code string
	Name string
}{
	{"en", "English"},
	{"tr", "Türkçe"},
}

// GetTranslations returns translations for the specified language
func GetTranslations(lang string) *Translations {
	cacheMutex.RLock()
	if t, ok := translationsCache[lang]; ok {
		cacheMutex.RUnlock()
		return t
	}
	cacheMutex.RUnlock()

	t, err := loadTranslations(lang)
	if err != nil {
		if lang != defaultLang {
			return GetTranslations(defaultLang)
		}
		return &Translations{}
	}

	cacheMutex.Lock()
	translationsCache[lang] = t
	cacheMutex.Unlock()

	return t
}

func loadTranslations(lang string) (*Translations, error) {
	data, err := localesFS.ReadFile(fmt.Sprintf("locales/%s.yml", lang))
	if err != nil {
		return nil, err
	}

	var t Translations
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// T is a convenience function for getting translations
func T(lang string) *Translations {
	return GetTranslations(lang)
}
