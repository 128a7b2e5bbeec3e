package persona

import "fmt"

const (
	// DefaultModel is the generative model every session is bound to unless a persona overrides it.
	DefaultModel = "gemini-2.5-flash"
	// DefaultNoResponse replaces a successful reply that carried no text.
	DefaultNoResponse = "No response"
	// DefaultPhone is the published contact number.
	DefaultPhone = "9811155576"
)

// Persona captures the assistant profile a widget talks as.
type Persona struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	Title             string   `json:"title" yaml:"title"`
	Model             string   `json:"model" yaml:"model"`
	Business          string   `json:"business" yaml:"business"`
	Location          string   `json:"location" yaml:"location"`
	Tone              string   `json:"tone" yaml:"tone"`
	Expertise         []string `json:"expertise,omitempty" yaml:"expertise"`
	SystemInstruction string   `json:"-" yaml:"systemInstruction"`
	Greeting          string   `json:"greeting" yaml:"greeting"`
	Phone             string   `json:"phone" yaml:"phone"`
	Apology           string   `json:"-" yaml:"apology"`
	NoResponse        string   `json:"-" yaml:"noResponse"`
}

// ApologyText returns the fixed message shown when a send fails.
func (p Persona) ApologyText() string {
	if p.Apology != "" {
		return p.Apology
	}
	phone := p.Phone
	if phone == "" {
		phone = DefaultPhone
	}
	return fmt.Sprintf("Network issue. Please call us directly at %s.", phone)
}

// NoResponseText returns the placeholder for replies without text.
func (p Persona) NoResponseText() string {
	if p.NoResponse != "" {
		return p.NoResponse
	}
	return DefaultNoResponse
}

// ModelID returns the model identifier sessions are created with.
func (p Persona) ModelID() string {
	if p.Model != "" {
		return p.Model
	}
	return DefaultModel
}

// Seed provides the Consultation House assistant.
func Seed() []Persona {
	return []Persona{
		{
			ID:       "consultation-house",
			Name:     "Consultation House AI",
			Title:    "Industrial compliance assistant",
			Model:    DefaultModel,
			Business: "Consultation House",
			Location: "Noida",
			Tone:     "helpful, professional and concise, speaking Hinglish",
			Expertise: []string{
				"Factories Act licensing and map approval",
				"ESI and PF compliance",
				"Pollution Board NOC (CTE/CTO)",
				"Fire NOC and safety audits",
				"Contract labour licensing",
				"Shop and establishment registration",
			},
			SystemInstruction: "You are a helpful, professional assistant for 'Consultation House' in Noida. " +
				"You speak in a mix of Hindi and English (Hinglish). " +
				"You help factory owners with queries about Factory Act, Labor Laws, and Pollution NOCs. " +
				"Keep answers concise.",
			Greeting: "नमस्ते! Apna problem bataen ya aj main apki kaise madad kar ksakta hoon?",
			Phone:    DefaultPhone,
		},
	}
}
