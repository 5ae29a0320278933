package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "alert.evacuate.title", defaultEvacuateTitle)
	message.SetString(lang, "alert.advisory.title", defaultAdvisoryTitle)
	message.SetString(lang, "alert.evacuate.body", "%s reported on floor %d, threat level %s. Leave now by the nearest safe exit and follow staff instructions.")
	message.SetString(lang, "alert.advisory.body", "%s reported on floor %d, threat level %s. Keep clear of the area and follow staff instructions.")
	message.SetString(lang, "alert.hazard.fire", "Fire")
	message.SetString(lang, "alert.hazard.security_threat", "Security threat")
	message.SetString(lang, "alert.hazard.medical_emergency", "Medical emergency")
	message.SetString(lang, "alert.hazard.structural_damage", "Structural damage")
	message.SetString(lang, "alert.hazard.chemical_spill", "Chemical spill")
	message.SetString(lang, "alert.level.low", "low")
	message.SetString(lang, "alert.level.medium", "medium")
	message.SetString(lang, "alert.level.high", "high")
	message.SetString(lang, "alert.level.critical", "critical")
}
