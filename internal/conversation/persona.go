package conversation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownPersona = errors.New("unknown persona")

// Persona is the closed set of fixed system roles a session can take on.
type Persona int

const (
	PersonaNone Persona = iota
	PersonaDefault
	PersonaTeacher
	PersonaDoctor
	PersonaLawyer
	PersonaFitnessCoach
	PersonaCareerAdvisor
)

var personaNames = map[Persona]string{
	PersonaNone:          "none",
	PersonaDefault:       "default",
	PersonaTeacher:       "teacher",
	PersonaDoctor:        "doctor",
	PersonaLawyer:        "lawyer",
	PersonaFitnessCoach:  "fitness_coach",
	PersonaCareerAdvisor: "career_advisor",
}

var personaTitles = map[Persona]string{
	PersonaNone:          "None",
	PersonaDefault:       "Default",
	PersonaTeacher:       "Teacher",
	PersonaDoctor:        "Doctor",
	PersonaLawyer:        "Lawyer",
	PersonaFitnessCoach:  "Fitness Coach",
	PersonaCareerAdvisor: "Career Advisor",
}

var personaPrompts = map[Persona]string{
	PersonaDefault: "You are a helpful assistant.",
	PersonaTeacher: "You are an experienced and patient school teacher who explains concepts clearly with examples and encourages learning. " +
		"Use simple language and break down complex topics into easy-to-understand parts.",
	PersonaDoctor: "You are a professional medical doctor who provides advice based on symptoms. " +
		"Always remind users to consult with a real healthcare provider for serious concerns. Be informative but responsible.",
	PersonaLawyer: "You are a legal expert who explains laws and rights in simple terms. " +
		"Provide general legal information but always advise users to consult with a qualified attorney for specific legal matters.",
	PersonaFitnessCoach: "You are a motivating fitness coach who gives health and exercise guidance. " +
		"Be encouraging, provide practical tips, and always emphasize safety and gradual progress.",
	PersonaCareerAdvisor: "You are a career advisor helping people choose jobs and build resumes. " +
		"Provide practical advice about career development, job searching, and professional growth.",
}

// Personas lists every persona in declaration order.
func Personas() []Persona {
	return []Persona{
		PersonaNone, PersonaDefault, PersonaTeacher, PersonaDoctor,
		PersonaLawyer, PersonaFitnessCoach, PersonaCareerAdvisor,
	}
}

// ParsePersona accepts the canonical name or the display title in any case,
// with spaces, hyphens or underscores. The empty string is PersonaNone.
func ParsePersona(s string) (Persona, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return PersonaNone, nil
	}
	for p, name := range personaNames {
		if name == key {
			return p, nil
		}
	}
	return PersonaNone, fmt.Errorf("%w: %q", ErrUnknownPersona, s)
}

func (p Persona) Valid() bool {
	_, ok := personaNames[p]
	return ok
}

func (p Persona) String() string {
	if name, ok := personaNames[p]; ok {
		return name
	}
	return fmt.Sprintf("persona(%d)", int(p))
}

func (p Persona) Title() string {
	return personaTitles[p]
}

// Prompt is the fixed system instruction for p; empty for PersonaNone.
func (p Persona) Prompt() string {
	return personaPrompts[p]
}

func (p Persona) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPersona, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Persona) UnmarshalText(text []byte) error {
	parsed, err := ParsePersona(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
