// Package gemini adapts Google's Gemini API to the pipeline's provider
// capability interface.
package gemini
