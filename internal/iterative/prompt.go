package iterative

import (
	"fmt"
	"strings"

	"github.com/steveyegge/analyst/internal/types"
)

// Prompt truncation bounds, in bytes.
const (
	PromptOutputTail  = 400
	PromptContextTail = 800
	ContextStepHead   = 500
)

// RetryPrompt is sent after a reply that contained no runnable code.
const RetryPrompt = "Please provide executable Python code for the next analysis step."

const responseFormat = `RESPONSE FORMAT - You must respond with EXACTLY this structure:

EXPLANATION: [1-2 sentences explaining what you'll do in this step and why]

CODE:
` + "```python" + `
[Small focused code block for this specific step]
` + "```"

// InitialSystemPrompt is the system prompt for the first step of a run.
func InitialSystemPrompt(context string) string {
	return `You are an expert data scientist conducting step-by-step analysis.

DATASET INFO: The dataset is already uploaded and available as 'data.csv' in the sandbox.

` + responseFormat + `

ANALYSIS RULES:
- Each step should be SMALL and focused on ONE specific aspect
- Start with basic data exploration
- ALWAYS use 'data.csv' as the filename - the dataset is already uploaded
- For visualizations: use plt.savefig('step_X_description.png') and plt.close()
- DO NOT create directories - they already exist
- Include clear print statements explaining what you're doing
- Progress through: basic stats -> correlations -> distributions -> patterns -> insights

CONTEXT: ` + context
}

// ContinuationSystemPrompt is the system prompt for every later step.
func ContinuationSystemPrompt(context string) string {
	return `You are an expert data scientist conducting step-by-step analysis.

DATASET INFO: The dataset is already uploaded and available as 'data.csv' in the sandbox.

` + responseFormat + `

ANALYSIS RULES:
- Each step should be SMALL and focused on ONE specific aspect
- Continue unless you've thoroughly analyzed the data from multiple angles
- Only respond "ANALYSIS_COMPLETE" when you've covered all major aspects
- Build upon previous findings logically
- ALWAYS use 'data.csv' as the filename - the dataset is already uploaded
- For visualizations: use plt.savefig('step_X_description.png') and plt.close()
- DO NOT create directories - they already exist
- Focus on different analysis each step: stats -> correlations -> distributions -> patterns -> insights

PREVIOUS CONTEXT: ` + context
}

// NextPrompt renders the continuation prompt for the step after iteration.
// It has no side effects.
func NextPrompt(iteration int, lastOutput, context string, covered types.TopicSet) string {
	completed := "None yet"
	if covered.Len() > 0 {
		completed = types.JoinTopics(covered.Sorted())
	}

	remaining := "All major areas covered"
	if missing := covered.Missing(types.AllTopics); len(missing) > 0 {
		remaining = types.JoinTopics(missing)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ANALYSIS CONTINUATION - Step %d\n\n", iteration+1)
	fmt.Fprintf(&sb, "PREVIOUS STEP RESULTS:\n%s\n\n", orDefault(tail(lastOutput, PromptOutputTail), "No output"))
	fmt.Fprintf(&sb, "ANALYSIS CONTEXT:\n%s\n\n", orDefault(tail(context, PromptContextTail), "Starting analysis"))
	sb.WriteString("COVERAGE STATUS:\n")
	fmt.Fprintf(&sb, "Completed topics: %s\n", completed)
	fmt.Fprintf(&sb, "Remaining areas: %s\n\n", remaining)
	sb.WriteString(`NEXT STEP:
Based on the coverage status, please choose the MOST VALUABLE next analysis step.
Priority order:
1. If data_exploration not covered: Basic data overview and structure
2. If correlations not covered: Feature relationships and target correlations
3. If distributions not covered: Feature distributions and patterns
4. If visualization not covered: Key visualizations for insights
5. If patterns not covered: Advanced pattern detection and outliers

IMPORTANT:
- Choose ONE focused analysis that adds NEW insights
- Avoid repeating previous analyses
- If all major topics covered, provide final summary or conclude
- Generate executable Python code for your chosen analysis
`)
	return sb.String()
}

// IterativePrompt starts a multi-step run about topic.
func IterativePrompt(topic string) string {
	return fmt.Sprintf(`START step-by-step analysis to explore: %s

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Begin with the first small step - basic data loading and structure overview using 'data.csv'.
Use the format with EXPLANATION and CODE sections.`, topic)
}

// SummaryPrompt starts a comprehensive multi-step run.
const SummaryPrompt = `BEGIN step-by-step comprehensive analysis of this dataset.

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Start with the first small step - data loading and basic structure using 'data.csv'.
Use the format with EXPLANATION and CODE sections for each step.`

// QuestionPrompt asks a single-step question.
func QuestionPrompt(question string) string {
	return fmt.Sprintf(`Analyze the dataset to answer this specific question: %s

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Use the format:
EXPLANATION: [Brief explanation of your approach]
CODE: [Python code to analyze the question using 'data.csv']

Focus on directly answering the user's question with data-driven insights.`, question)
}

// VisualizePrompt asks for a single visualization step.
func VisualizePrompt(request string) string {
	return fmt.Sprintf(`Create visualizations based on this request: %s

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Use the format:
EXPLANATION: [Brief explanation of the visualization approach]
CODE: [Python code to create the visualization using 'data.csv']

Generate appropriate charts, graphs, or plots that best represent the data.
Use matplotlib and seaborn for professional visuals.
Save visualizations to output folder with descriptive names.`, request)
}

// ExplorePrompt asks for a single exploration step.
func ExplorePrompt(aspect string) string {
	return fmt.Sprintf(`Explore this specific aspect of the dataset: %s

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Use the format:
EXPLANATION: [Brief explanation of the exploration approach]
CODE: [Python code to explore the data aspect using 'data.csv']

Provide deep insights, patterns, anomalies, and interesting findings.
Include both statistical analysis and visualizations where appropriate.`, aspect)
}

// ComprehensivePrompt starts a multi-step run from free text that asked for
// an in-depth analysis.
func ComprehensivePrompt(request string) string {
	return fmt.Sprintf(`%s

DATASET INFO: The dataset is already uploaded as 'data.csv' in the sandbox.

Start the analysis step by step, building comprehensive insights.
Use the format with EXPLANATION and CODE sections for each step.`, request)
}
