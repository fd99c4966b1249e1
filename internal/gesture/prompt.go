package gesture

var prompts = map[Gesture]string{
	HandRaised: "The child raised their hand. How should I respond?",
	HeadTilted: "The child tilted their head. How should I respond?",
	FistClosed: "The child made a fist. How should I respond?",
}

// Prompt returns the fixed chat prompt for g, or "" for None and unknown tags.
func Prompt(g Gesture) string {
	return prompts[g]
}

// Parse maps a tag string back to a Gesture. Unknown strings give None.
func Parse(s string) Gesture {
	g := Gesture(s)
	if _, ok := prompts[g]; ok {
		return g
	}
	return None
}

func (g Gesture) String() string { return string(g) }
