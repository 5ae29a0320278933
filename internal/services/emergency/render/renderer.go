// Package render produces localized public-announcement copy for
// evacuation alerts.
package render

import (
	"strings"

	"github.com/louisbranch/egress/internal/services/emergency/domain/incident"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultEvacuateTitle = "Evacuation order"
	defaultAdvisoryTitle = "Safety advisory"
	defaultHazardName    = "Emergency"
)

// DefaultLocale is the language of Alert.Message.
var DefaultLocale = language.English

// SupportedLocales are the announcement languages carried on every alert.
var SupportedLocales = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
	language.Spanish,
}

// Input is one alert render request.
type Input struct {
	EventType incident.EventType
	Level     incident.ThreatLevel
	Floor     int
	Evacuate  bool
}

// Output is localized announcement copy.
type Output struct {
	Title        string
	Announcement string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// Render returns localized copy for one alert.
func Render(loc Localizer, input Input) Output {
	hazardName := localizeWithFallback(loc, "alert.hazard."+string(input.EventType), defaultHazardName)
	levelName := localizeWithFallback(loc, "alert.level."+input.Level.String(), input.Level.String())

	titleKey, titleFallback, bodyKey := "alert.advisory.title", defaultAdvisoryTitle, "alert.advisory.body"
	if input.Evacuate {
		titleKey, titleFallback, bodyKey = "alert.evacuate.title", defaultEvacuateTitle, "alert.evacuate.body"
	}
	body := localize(loc, bodyKey, hazardName, input.Floor, levelName)
	if body == bodyKey || strings.TrimSpace(body) == "" {
		body = hazardName
	}
	return Output{
		Title:        localizeWithFallback(loc, titleKey, titleFallback),
		Announcement: body,
	}
}

// Renderer renders alerts in every supported locale.
type Renderer struct {
	printers map[string]*message.Printer
}

// NewRenderer builds printers for tags, or SupportedLocales when none given.
func NewRenderer(tags ...language.Tag) *Renderer {
	if len(tags) == 0 {
		tags = SupportedLocales
	}
	printers := make(map[string]*message.Printer, len(tags))
	for _, tag := range tags {
		printers[tag.String()] = message.NewPrinter(tag)
	}
	return &Renderer{printers: printers}
}

// Announcements returns "title: announcement" keyed by BCP 47 tag.
func (r *Renderer) Announcements(input Input) map[string]string {
	out := make(map[string]string, len(r.printers))
	for tag, printer := range r.printers {
		rendered := Render(printer, input)
		out[tag] = rendered.Title + ": " + rendered.Announcement
	}
	return out
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
