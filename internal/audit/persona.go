package audit

// PersonaConfig is the fixed configuration of one assessor perspective.
// Personas differ only by these values; behavior is selected by tag.
type PersonaConfig struct {
	Tag        Persona
	Title      string
	Philosophy string
	Preamble   string
	// Bias shifts the offline judge's score relative to the evidence
	// baseline: negative is harsher, positive more lenient.
	Bias int
}

var personaConfigs = []PersonaConfig{
	{
		Tag:        Adversarial,
		Title:      "Prosecutor",
		Philosophy: "Trust no one. Assume shortcuts were taken.",
		Preamble: "You are the Prosecutor. Scrutinize the evidence for gaps, security flaws and laziness. " +
			"Look for what is missing rather than what is present. Cite specific findings. " +
			"Score the worst confirmed violation.",
		Bias: -1,
	},
	{
		Tag:        Generous,
		Title:      "Defense",
		Philosophy: "Reward effort and intent. Look for the spirit of the requirement.",
		Preamble: "You are the Defense. Highlight creative workarounds and genuine engineering effort even when " +
			"the implementation is imperfect. Emphasize what is present and working. " +
			"Score the best reasonable interpretation of the evidence.",
		Bias: 1,
	},
	{
		Tag:        Pragmatic,
		Title:      "Tech Lead",
		Philosophy: "Does it actually work, and can it be maintained?",
		Preamble: "You are the Tech Lead. Evaluate architectural soundness and practical viability, ignoring " +
			"effort narratives. 1 means broken, 3 works with debt, 5 is production grade. " +
			"Your argument must include concrete remediation steps.",
		Bias: 0,
	},
}

// Personas returns the three persona configurations in canonical order.
func Personas() []PersonaConfig {
	out := make([]PersonaConfig, len(personaConfigs))
	copy(out, personaConfigs)
	return out
}

// PersonaTags returns the three tags in canonical order.
func PersonaTags() []Persona {
	return []Persona{Adversarial, Generous, Pragmatic}
}

// ConfigFor returns the configuration for a tag.
func ConfigFor(p Persona) (PersonaConfig, bool) {
	for _, c := range personaConfigs {
		if c.Tag == p {
			return c, true
		}
	}
	return PersonaConfig{}, false
}

// Valid reports whether p is one of the three known tags.
func (p Persona) Valid() bool {
	return p.Rank() >= 0
}

// Rank is the canonical position of the persona, or -1 when unknown.
func (p Persona) Rank() int {
	switch p {
	case Adversarial:
		return 0
	case Generous:
		return 1
	case Pragmatic:
		return 2
	}
	return -1
}
