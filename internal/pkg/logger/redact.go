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

// RedactPhone masks a phone number keeping only the last four digits.
// "+1 (555) 123-4567" → "***4567". Numbers too short to mask safely
// are fully masked.
func RedactPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

// RedactContact masks a contact address of either kind. Values with an
// "@" are treated as email addresses, everything else as phone numbers.
func RedactContact(contact string) string {
	if strings.Contains(contact, "@") {
		return RedactEmail(contact)
	}
	return RedactPhone(contact)
}

// RedactEmailsIn masks every email address embedded in free text. Meant
// for provider error messages and other strings persisted outside the
// logger's own redaction path.
func RedactEmailsIn(s string) string {
	return emailRegex.ReplaceAllStringFunc(s, RedactEmail)
}
