package translate

import "fmt"

// DefaultSystemPrompt instructs the model to act as a JA/EN live interpreter.
const DefaultSystemPrompt = `You are a professional simultaneous interpreter between Japanese and English.
Convert the speech-recognition input into readable text and translate it following these rules:

1. If the source text is Japanese, translate it into English.
2. If the source text is English, translate it into Japanese.
3. Remove fillers such as "uh", "um", "えー" or "あの" and redundant repetitions.
4. If words are missing, complete them from context.
5. Keep technical terms, proper nouns and cultural references accurate.
6. Make the output natural and conversational.
7. Output only the translation, without explanations.`

// DefaultModel is the model used when a backend entry names none.
const DefaultModel = "gpt-4.1-nano"

// DefaultTemperature is a low sampling temperature for faithful output.
const DefaultTemperature = 0.3

// UserPrompt renders the user message for req.
func UserPrompt(req Request) string {
	return fmt.Sprintf("Translate the following %s text into %s:\n\n%s",
		req.Pair.Source.DisplayName(), req.Pair.Target.DisplayName(), req.Text)
}
