package analyzer

import "fmt"

const classificationSystemPrompt = `You are an AI assistant that analyzes screenshots to determine if a person is on track or off track with their current task.

Your job is to:
1. Analyze the screenshot provided
2. Determine if the person appears to be focused on their stated intent or distracted
3. Respond with ONLY a valid JSON object in this exact format:

{
  "status": "on_track" | "off_track" | "unknown",
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation of your assessment"
}

On track indicators:
- Activities that directly support the stated intent
- Work-related applications when intent is work-focused
- Educational content when intent is learning
- Research activities when intent involves research
- Task management or planning tools when intent is organizing

Off track indicators:
- Activities unrelated to the stated intent
- Social media when intent is work/study
- Entertainment when intent is productivity
- Gaming when intent is professional work
- Personal browsing when intent is task completion

Unknown indicators:
- Screen is unclear or unreadable
- Desktop with no clear activity
- Ambiguous applications that could support or detract from intent
- Insufficient information to make determination

CRITICAL: Respond ONLY with the JSON object. No additional text, explanations, or formatting.`

func classificationUserPrompt(intent string) string {
	return fmt.Sprintf("Analyze this screenshot and determine if the person is on track or off track with their stated intent: '%s'", intent)
}

func nudgeUserPrompt(intent string) string {
	return fmt.Sprintf("I said I would focus on '%s', but I got distracted. "+
		"Write me one or two short sentences, in your own voice, to get me back on it. "+
		"Reply with the message only.", intent)
}

func templateNudge(intent string) string {
	return fmt.Sprintf("Looks like you drifted away from '%s'. Time to get back to it!", intent)
}
