package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Spanish

	message.SetString(lang, "alert.evacuate.title", "Orden de evacuacion")
	message.SetString(lang, "alert.advisory.title", "Aviso de seguridad")
	message.SetString(lang, "alert.evacuate.body", "%s reportado en el piso %d, nivel de amenaza %s. Salga ahora por la salida segura mas cercana y siga las instrucciones del personal.")
	message.SetString(lang, "alert.advisory.body", "%s reportado en el piso %d, nivel de amenaza %s. Mantengase alejado del area y siga las instrucciones del personal.")
	message.SetString(lang, "alert.hazard.fire", "Incendio")
	message.SetString(lang, "alert.hazard.security_threat", "Amenaza de seguridad")
	message.SetString(lang, "alert.hazard.medical_emergency", "Emergencia medica")
	message.SetString(lang, "alert.hazard.structural_damage", "Dano estructural")
	message.SetString(lang, "alert.hazard.chemical_spill", "Derrame quimico")
	message.SetString(lang, "alert.level.low", "bajo")
	message.SetString(lang, "alert.level.medium", "medio")
	message.SetString(lang, "alert.level.high", "alto")
	message.SetString(lang, "alert.level.critical", "critico")
}
