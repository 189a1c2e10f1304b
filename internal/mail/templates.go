package mail

import "fmt"

// VerificationEmail builds the verify-your-address mail.
func VerificationEmail(baseURL, name, token string) (subject, body string) {
	subject = "Verify your Formloom email address"
	body = fmt.Sprintf(`Hi %s,

Welcome to Formloom. Confirm your email address by opening the link below:

%s/verify-email?token=%s

The link is valid for 24 hours. If you did not create an account, you
can ignore this mail.
`, name, baseURL, token)
	return subject, body
}

// PasswordResetEmail builds the reset-your-password mail.
func PasswordResetEmail(baseURL, name, token string) (subject, body string) {
	subject = "Reset your Formloom password"
	body = fmt.Sprintf(`Hi %s,

Someone requested a password reset for your account. Open the link
below to choose a new password:

%s/reset-password?token=%s

The link is valid for 1 hour. If this wasn't you, your password is
unchanged and you can ignore this mail.
`, name, baseURL, token)
	return subject, body
}

// SubmissionNoticeEmail tells a form owner about a new submission.
func SubmissionNoticeEmail(baseURL, formTitle string, formID string) (subject, body string) {
	subject = fmt.Sprintf("New submission: %s", formTitle)
	body = fmt.Sprintf(`Your form %q just received a new submission.

View it here:

%s/forms/%s/submissions
`, formTitle, baseURL, formID)
	return subject, body
}
