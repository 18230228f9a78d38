package core

// ReActStep records one reasoning step of an agentic loop.
type ReActStep struct {
	StepNumber       int
	Thought          string
	Action           string
	ActionInput      string
	Observation      string
	CumulativeTokens int
}

// ReActResult is the outcome of a full ReAct run, including steps from every
// attempt when retries were taken.
type ReActResult struct {
	Success     bool
	FinalAnswer string
	Steps       []ReActStep
	Attempts    int
	TokensUsed  int
	Error       string
}
