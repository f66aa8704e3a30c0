package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps only the last two digits of a phone number.
// Application forms collect phone numbers; they get the same treatment as
// emails on the way to the logs.
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 2 {
		return "***"
	}
	return "***" + phone[len(phone)-numTrailing(phone, 2):]
}

// numTrailing returns how many bytes from the end of s cover n digits.
func numTrailing(s string, n int) int {
	seen := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			seen++
			if seen == n {
				return len(s) - i
			}
		}
	}
	return len(s)
}
