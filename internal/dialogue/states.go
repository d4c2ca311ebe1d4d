package dialogue

// State is one step of the per-call dialogue state machine
// (SPEC_FULL.md §4.3): Idle → Setup → Greeting → Listening → Generating →
// Speaking → (loop to Listening) → Teardown.
type State string

const (
	StateIdle       State = "idle"
	StateSetup      State = "setup"
	StateGreeting   State = "greeting"
	StateListening  State = "listening"
	StateGenerating State = "generating"
	StateSpeaking   State = "speaking"
	StateTeardown   State = "teardown"
)

// BargeInAction is the controller's decision for an interim transcript
// arriving during Speaking/Generating.
type BargeInAction int

const (
	// BargeInNone means the interim did not meet the interruption
	// predicate, or it arrived during the greeting (which never barges
	// itself).
	BargeInNone BargeInAction = iota
	// BargeInGentle clears the pending TTS queue; frames already in
	// flight may finish within the grace window.
	BargeInGentle
	// BargeInHard drops all in-flight frames immediately — only reached
	// when the caller keeps talking past the grace window after a gentle
	// stop.
	BargeInHard
)
