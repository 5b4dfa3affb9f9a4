package domain

import "strings"

// Persona is a closed set of instruction bundles driving how the model is prompted.
type Persona int

const (
	PersonaDefault Persona = iota
	PersonaCoder
)

var personaNames = map[Persona]string{
	PersonaDefault: "Default",
	PersonaCoder:   "Coder",
}

const defaultInstructions = `You are a helpful assistant inside a personal knowledge workspace.
Answer clearly and concisely. Use Markdown for structure when it helps.
When reference files or prior messages are provided, ground your answer in them and say so when they do not cover the question.`

const coderInstructions = `You are an expert software engineer.
Write correct, idiomatic, production-quality code and explain the important decisions briefly.
Always put code in fenced blocks tagged with the language. Prefer complete, runnable snippets over fragments.
When reference files are provided, treat them as the current state of the codebase.`

func (p Persona) String() string {
	if n, ok := personaNames[p]; ok {
		return n
	}
	return personaNames[PersonaDefault]
}

func (p Persona) BaseInstructions() string {
	switch p {
	case PersonaCoder:
		return coderInstructions
	default:
		return defaultInstructions
	}
}

// ParsePersona resolves a label case-insensitively.
func ParsePersona(label string) (Persona, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	for p, n := range personaNames {
		if strings.ToLower(n) == l {
			return p, true
		}
	}
	return PersonaDefault, false
}

func PersonaLabels() []string {
	return []string{personaNames[PersonaDefault], personaNames[PersonaCoder]}
}
