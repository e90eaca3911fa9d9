package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"courselite/models"
)

// Embedded transactional email templates
var emailTemplates = map[string]string{
	"welcome": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #2C2D2C; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { text-align: center; padding: 30px 0; background: linear-gradient(135deg, #2D5D4F 0%, #5A8A7A 100%); color: white; border-radius: 10px 10px 0 0; }
        .content { background: white; padding: 40px 30px; border: 2px solid #9BCBBB; border-top: none; border-radius: 0 0 10px 10px; }
        .cta-button { display: inline-block; padding: 16px 40px; background-color: #D4DD3C; color: #2C2D2C; text-decoration: none; border-radius: 8px; font-weight: bold; font-size: 18px; margin: 20px 0; }
        .video-link { background-color: #f8f9fa; padding: 15px; border-left: 4px solid #5A8A7A; margin: 20px 0; border-radius: 4px; font-size: 14px; word-break: break-all; }
        .footer { text-align: center; padding: 20px; color: #666; font-size: 14px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Courselite</h1>
        <p>Learn at your own pace</p>
    </div>

    <div class="content">
        <p>Hi {{.FirstName}}!</p>

        <p>Welcome to Courselite! Your free course is ready.</p>

        <center>
            <a href="{{.VideoURL}}" class="cta-button">Watch Your Free Course Now</a>
        </center>

        <p>This link is personal to you, so feel free to bookmark it and come back anytime.</p>

        <div class="video-link">
            <strong>Your personal access link:</strong><br>
            <a href="{{.VideoURL}}">{{.VideoURL}}</a>
        </div>

        <p>Over the next few days we'll share more lessons and tips. Keep an eye on your inbox!</p>
    </div>

    <div class="footer">
        <p>&copy; {{.Year}} Courselite. All rights reserved.</p>
    </div>
</body>
</html>`,
}

// SendWelcomeEmail delivers the signup welcome message with the user's
// personal video access link
func SendWelcomeEmail(mailer Mailer, user *models.User, appURL string) error {
	tmplContent, ok := emailTemplates["welcome"]
	if !ok {
		return fmt.Errorf("template 'welcome' not found")
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %v", err)
	}

	firstName := "there"
	if user.FirstName != nil && *user.FirstName != "" {
		firstName = *user.FirstName
	}
	videoURL := fmt.Sprintf("%s/watch?token=%s", appURL, user.AccessToken)
	subject := "Welcome to Courselite! Your Free Course Awaits"

	var body bytes.Buffer
	if err := tmpl.Execute(&body, struct {
		Subject   string
		FirstName string
		VideoURL  string
		Year      int
	}{
		Subject:   subject,
		FirstName: firstName,
		VideoURL:  videoURL,
		Year:      time.Now().Year(),
	}); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	text := fmt.Sprintf(
		"Hi %s!\n\nWelcome to Courselite! Your free course is ready.\n\nWatch now: %s\n\nThis link is personal to you, so feel free to bookmark it and come back anytime.\n",
		firstName, videoURL)

	return mailer.Send(SendEmailParams{
		To:      user.Email,
		Subject: subject,
		HTML:    body.String(),
		Text:    text,
	})
}
