package router

import "strings"

// exampleRequestPatterns is the closed set of phrasings that mark a follow-up
// example or precedent request. The set is deliberately small and literal:
// the rule short-circuits the whole pipeline, so false positives are worse
// than falling through to the classifier.
var exampleRequestPatterns = []string{
	"another example",
	"more examples",
	"other examples",
	"more projects",
	"other projects",
	"similar projects",
	"other precedents",
	"more precedents",
	"show me precedents",
	"show me examples",
	"can you give me an example",
	"can you give me examples",
	"any reference projects",
	"more case studies",
	"other case studies",
}

// IsExampleRequest reports whether the user text matches the closed
// example-request pattern set
func IsExampleRequest(userText string) bool {
	lower := strings.ToLower(userText)
	for _, pattern := range exampleRequestPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
