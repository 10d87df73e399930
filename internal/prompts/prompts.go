// Package prompts holds the system and user prompt templates for every
// model call the service makes.
package prompts

import (
	"fmt"
	"strings"
)

// AskSystem frames answer generation for transcript Q&A.
const AskSystem = `You answer questions about a podcast or video using only the transcript excerpts provided. Each excerpt is prefixed with its time range. Cite timestamps in [HH:MM:SS] form when you reference a specific moment. If the excerpts do not contain the answer, say so plainly instead of guessing.`

// AskUser builds the Q&A user prompt from formatted excerpts and the
// question.
func AskUser(contextBlock, question string) string {
	return fmt.Sprintf("Transcript excerpts:\n\n%s\n\nQuestion: %s", contextBlock, question)
}

// TopicDecisionSystem frames the streaming topic assignment pass.
const TopicDecisionSystem = `You organize a transcript into topics. For each transcript passage you decide whether it continues an existing topic or starts a new one. Respond with a single JSON object and nothing else: {"action": "assign", "topic": "<existing topic name>"} or {"action": "create", "topic": "<short new topic name>"}.`

// TopicDecisionUser builds the per-passage topic decision prompt.
func TopicDecisionUser(topics []string, passage string) string {
	var b strings.Builder
	if len(topics) == 0 {
		b.WriteString("There are no topics yet.\n")
	} else {
		b.WriteString("Existing topics:\n")
		for _, t := range topics {
			b.WriteString("- " + t + "\n")
		}
	}
	b.WriteString("\nPassage:\n")
	b.WriteString(passage)
	return b.String()
}

// SynopsisSystem frames the episode synopsis pass.
const SynopsisSystem = `You write a concise synopsis of a podcast or video from transcript excerpts. Capture the main narrative and conclusions in two to four paragraphs. Reference key moments with [HH:MM:SS] timestamps.`

// SynopsisUser builds the synopsis prompt.
func SynopsisUser(body string) string {
	return "Write a synopsis of this episode from the transcript below.\n\n" + body
}

// DeepDiveSystem frames the per-topic deep dive pass.
const DeepDiveSystem = `You write a detailed breakdown of a podcast or video, one markdown section per topic. Start each section with a "## <topic>" heading, explain the discussion thoroughly, keep concrete details and quotes, and reference moments with [HH:MM:SS] timestamps.`

// DeepDiveUser builds the deep dive prompt.
func DeepDiveUser(body string) string {
	return "Write a deep dive section for each topic below.\n\n" + body
}

// FrameworksSystem frames extraction of actionable structures.
const FrameworksSystem = `You extract frameworks, step-by-step processes, checklists and methods mentioned in a transcript. Present each as a named markdown subsection with its steps as a list. Reference where it was discussed with [HH:MM:SS] timestamps. Only include structures actually described in the transcript.`

// FrameworksUser builds the frameworks prompt.
func FrameworksUser(body string) string {
	return "Extract the frameworks and methods from the transcript excerpts below.\n\n" + body
}
