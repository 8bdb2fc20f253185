package i18n

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/axioma-ai-labs/guardy/internal/infra"
	"github.com/axioma-ai-labs/guardy/resources"
)

var state = struct {
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	if "en" == lang {
		return
	}

	data, err := resources.FS.ReadFile(infra.GetResourcesPath("i18n", fmt.Sprintf("%s.yml", lang)))
	if err != nil {
		log.WithError(err).Errorln("cant load i18n")
		state.loaded[lang] = true
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(data, &translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
		state.loaded[lang] = true
		return
	}
	state.translations[lang] = translations
	state.loaded[lang] = true
}

// Get returns the translation of key for lang, falling back to the key
// itself (English source strings double as translation keys).
func Get(key, lang string) string {
	if "en" == lang {
		return key
	}
	if !state.loaded[lang] {
		load(lang)
	}
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	return key
}
