// Package language normalizes the language codes exchanged with the speech
// and orchestrator services so that detected and target languages compare
// and log consistently regardless of which variant a service returns.
package language
