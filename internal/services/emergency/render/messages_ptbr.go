package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.BrazilianPortuguese

	message.SetString(lang, "alert.evacuate.title", "Ordem de evacuacao")
	message.SetString(lang, "alert.advisory.title", "Aviso de seguranca")
	message.SetString(lang, "alert.evacuate.body", "%s registrado no piso %d, nivel de ameaca %s. Saia agora pela saida segura mais proxima e siga as instrucoes da equipe.")
	message.SetString(lang, "alert.advisory.body", "%s registrado no piso %d, nivel de ameaca %s. Mantenha-se afastado da area e siga as instrucoes da equipe.")
	message.SetString(lang, "alert.hazard.fire", "Incendio")
	message.SetString(lang, "alert.hazard.security_threat", "Ameaca a seguranca")
	message.SetString(lang, "alert.hazard.medical_emergency", "Emergencia medica")
	message.SetString(lang, "alert.hazard.structural_damage", "Dano estrutural")
	message.SetString(lang, "alert.hazard.chemical_spill", "Vazamento quimico")
	message.SetString(lang, "alert.level.low", "baixo")
	message.SetString(lang, "alert.level.medium", "medio")
	message.SetString(lang, "alert.level.high", "alto")
	message.SetString(lang, "alert.level.critical", "critico")
}
