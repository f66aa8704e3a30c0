package personalize

import (
	"strings"

	"github.com/innerpath/studio/internal/domain"
)

// ApplyMergeTags substitutes the recognized merge tags with lead values.
// Substitution is literal and case-sensitive: unrecognized {{tokens}} pass
// through untouched, so applying tags to content without any recognized
// token returns it byte-for-byte.
//
// {{name}} and {{first_name}} fall back to "there" when the lead has no
// name, so a greeting never renders blank.
func ApplyMergeTags(content string, lead *domain.Lead) string {
	content = strings.ReplaceAll(content, "{{name}}", lead.DisplayName())
	content = strings.ReplaceAll(content, "{{first_name}}", lead.FirstName())
	content = strings.ReplaceAll(content, "{{email}}", lead.Email)

	archetype := ""
	if lead.QuizResult != nil {
		archetype = *lead.QuizResult
	}
	content = strings.ReplaceAll(content, "{{archetype}}", archetype)

	return content
}
