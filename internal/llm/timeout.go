package llm

import "time"

const (
	defaultCallTimeout = 60 * time.Second
	longCallTimeout    = 600 * time.Second
)

// Reasoning models that routinely think for minutes before answering.
var longRunningModels = map[string]struct{}{
	"deepseek-ai/DeepSeek-R1-Distill-Llama-70B": {},
	"deepseek-ai/DeepSeek-R1":                   {},
}

// TimeoutFor returns the chat call deadline for model.
func TimeoutFor(model string) time.Duration {
	if _, ok := longRunningModels[model]; ok {
		return longCallTimeout
	}
	return defaultCallTimeout
}
