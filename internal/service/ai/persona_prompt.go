package ai

import (
	"fmt"
	"strings"

	"github.com/consultationhouse/site/backend/internal/model/persona"
)

// SystemInstruction renders the instruction a session is created with.
// An explicit persona instruction is used verbatim; otherwise one is built
// from the persona's profile fields.
func SystemInstruction(p persona.Persona) string {
	if instruction := strings.TrimSpace(p.SystemInstruction); instruction != "" {
		return instruction
	}
	return buildBasicInstruction(p)
}

func buildBasicInstruction(p persona.Persona) string {
	business := p.Business
	if business == "" {
		business = p.Name
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("You are a helpful, professional assistant for '%s'", business))
	if p.Location != "" {
		builder.WriteString(" in ")
		builder.WriteString(p.Location)
	}
	builder.WriteString(".")

	if p.Tone != "" {
		builder.WriteString(" Your tone: ")
		builder.WriteString(p.Tone)
		builder.WriteString(".")
	}
	if len(p.Expertise) > 0 {
		builder.WriteString(" You help factory owners with queries about ")
		builder.WriteString(strings.Join(p.Expertise, ", "))
		builder.WriteString(".")
	}
	if p.Phone != "" {
		builder.WriteString(fmt.Sprintf(" For anything you cannot resolve, ask the user to call %s.", p.Phone))
	}
	builder.WriteString(" Keep answers concise.")
	return builder.String()
}
