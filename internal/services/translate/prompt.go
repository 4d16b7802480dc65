package translate

import "fmt"

const translateSystemPrompt = "You are a professional translator specializing in video subtitles. Keep translations natural and fluent, suitable for spoken delivery."

const adjustSystemPrompt = "You are a professional text editor. You must meet the requested character count exactly; staying within the allowed range is mandatory."

func translateUserPrompt(text, targetLanguage string) string {
	return fmt.Sprintf(
		"Translate the following text into %s. Keep the phrasing natural and conversational. Output only the translation:\n\n%s",
		targetLanguage,
		text,
	)
}

func shortenUserPrompt(originalText, currentText, targetLanguage string, currentChars, targetChars int) string {
	return fmt.Sprintf(
		`Task: shorten a subtitle translation to a strict character budget.

Original text: %s
Current %s translation: %s
Current length: %d characters
Target length: %d characters (must land between %d and %d)

Requirements:
1. Preserve the meaning.
2. Use tighter wording and drop redundant words.
3. The output must be between %d and %d characters.
4. Output only the revised %s translation, nothing else.`,
		originalText,
		targetLanguage,
		currentText,
		currentChars,
		targetChars, targetChars-2, targetChars+2,
		targetChars-2, targetChars+2,
		targetLanguage,
	)
}

func lengthenUserPrompt(originalText, currentText, targetLanguage string, currentChars, targetChars int) string {
	return fmt.Sprintf(
		`Task: expand a subtitle translation to a strict character budget.

Original text: %s
Current %s translation: %s
Current length: %d characters
Target length: %d characters (must land between %d and %d)

Requirements:
1. Preserve the meaning.
2. Add natural modifiers or filler particles to lengthen the line.
3. The output must be between %d and %d characters.
4. Output only the revised %s translation, nothing else.`,
		originalText,
		targetLanguage,
		currentText,
		currentChars,
		targetChars, targetChars-2, targetChars+2,
		targetChars-2, targetChars+2,
		targetLanguage,
	)
}
