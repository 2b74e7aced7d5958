package generator

// Context types select a system prompt. Unknown types fall back to default.
const (
	ContextDefault   = "default"
	ContextVoice     = "voice"
	ContextTechnical = "technical"
	ContextRealtime  = "realtime"
)

// DefaultPrompts returns the built-in system prompt templates.
func DefaultPrompts() map[string]string {
	return map[string]string{
		ContextDefault: "You are ZYEON, an advanced AI assistant with a futuristic personality. " +
			"You are helpful, intelligent, and slightly mysterious. Keep responses concise but informative. " +
			"You have access to real-time capabilities and can process voice commands. " +
			"Always maintain a professional yet engaging tone. You can remember context from previous messages.",
		ContextVoice: "You are ZYEON, an advanced AI assistant optimized for voice interaction. " +
			"Keep responses brief and conversational, suitable for text-to-speech. " +
			"Avoid using special characters, markdown, or complex formatting. " +
			"Speak naturally as if having a conversation.",
		ContextTechnical: "You are ZYEON, a technical AI assistant specializing in programming and technology. " +
			"Provide detailed, accurate technical information. Use code examples when helpful. " +
			"Explain complex concepts clearly and offer practical solutions.",
	}
}

const (
	suggestionsPrompt = "Based on the AI's last response, suggest 3 brief follow-up questions or responses " +
		"the user might want to ask. Return as a JSON array of strings."
	summaryPrompt = "Summarize the following conversation in 2-3 sentences. " +
		"Focus on the main topics discussed and key outcomes."
	sentimentPrompt = "Analyze the sentiment of the following text. Respond with a JSON object containing " +
		"'sentiment' (positive/negative/neutral), 'confidence' (0-1), and 'emotions' (array of detected emotions)."
)

// Degraded responses returned instead of upstream failures.
const (
	msgRateLimited  = "I'm experiencing high demand right now. Please try again in a moment."
	msgInvalidInput = "I'm having trouble processing your request. Please try rephrasing it."
	msgAuth         = "I'm experiencing authentication issues. Please contact support."
	msgConnectivity = "I'm having trouble connecting to my AI services. Please try again."
	msgGeneric      = "I apologize, but I'm experiencing technical difficulties. Please try again."
)
