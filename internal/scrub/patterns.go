package scrub

import "regexp"

// DefaultPatterns returns the built-in redaction ruleset (spec §4.11):
// provider-specific and generic API key shapes, bearer tokens, JWTs, AWS
// keys, common PII, private-key headers, and common database URL
// schemes. Order matters — more specific patterns run before the
// generic catch-alls so a JWT or AWS key is never double-redacted as a
// plain "generic token".
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:        "openai_api_key",
			Regex:       regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
			Replacement: "[REDACTED_OPENAI_KEY]",
		},
		{
			Name:        "anthropic_api_key",
			Regex:       regexp.MustCompile(`sk-ant-[A-Za-z0-9\-_]{20,}`),
			Replacement: "[REDACTED_ANTHROPIC_KEY]",
		},
		{
			Name:        "aws_access_key_id",
			Regex:       regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
			Replacement: "[REDACTED_AWS_ACCESS_KEY]",
		},
		{
			Name:        "aws_secret_key",
			Regex:       regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`),
			Replacement: "aws_secret_access_key=[REDACTED_AWS_SECRET]",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`\bey[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
			Replacement: "[REDACTED_JWT]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]{10,}`),
			Replacement: "Bearer [REDACTED_TOKEN]",
		},
		{
			Name:        "generic_api_key",
			Regex:       regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret)\s*[:=]\s*['"]?[A-Za-z0-9._\-]{16,}['"]?`),
			Replacement: "$1=[REDACTED]",
		},
		{
			Name:        "private_key_header",
			Regex:       regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
			Replacement: "-----BEGIN [REDACTED] PRIVATE KEY-----",
		},
		{
			Name:        "database_url",
			Regex:       regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis)://[^:\s]+:[^@\s]+@[^\s]+`),
			Replacement: "$1://[REDACTED_CREDENTIALS]@[REDACTED_HOST]",
		},
		{
			Name:        "credit_card",
			Regex:       regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),
			Replacement: "[REDACTED_CARD_NUMBER]",
		},
		{
			Name:        "us_ssn",
			Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Replacement: "[REDACTED_SSN]",
		},
		{
			Name:        "cn_id_card",
			Regex:       regexp.MustCompile(`\b\d{17}[0-9Xx]\b`),
			Replacement: "[REDACTED_CN_ID]",
		},
		{
			Name:        "cn_phone",
			Regex:       regexp.MustCompile(`\b1[3-9]\d{9}\b`),
			Replacement: "[REDACTED_PHONE]",
		},
		{
			Name:        "us_phone",
			Regex:       regexp.MustCompile(`\b\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`),
			Replacement: "[REDACTED_PHONE]",
		},
		{
			Name:        "iban",
			Regex:       regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`),
			Replacement: "[REDACTED_IBAN]",
		},
	}
}
