package utils

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courselite/models"
)

// DefaultEmailHeader opens the shared email shell. Admin-persisted
// overrides live in the settings table under email_header/email_footer.
var DefaultEmailHeader = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
      line-height: 1.6;
      color: #2C2D2C;
      max-width: 600px;
      margin: 0 auto;
      padding: 20px;
      background-color: #f5f5f5;
    }
    .email-container {
      background: white;
      border-radius: 10px;
      overflow: hidden;
      box-shadow: 0 2px 8px rgba(0,0,0,0.1);
    }
    .email-header {
      text-align: center;
      padding: 30px 20px;
      background: linear-gradient(135deg, #2D5D4F 0%, #5A8A7A 100%);
      color: white;
    }
    .email-content {
      padding: 40px 30px;
    }
    .email-content a {
      color: #2D5D4F;
      text-decoration: underline;
    }
    .cta-button {
      display: inline-block;
      padding: 16px 40px;
      background-color: #D4DD3C;
      color: #2C2D2C !important;
      text-decoration: none;
      border-radius: 8px;
      font-weight: bold;
      font-size: 18px;
      margin: 20px 0;
      text-align: center;
    }
  </style>
</head>
<body>
  <div class="email-container">
    <div class="email-header">
      <h1>Courselite</h1>
      <p>Learn at your own pace</p>
    </div>
    <div class="email-content">
`

// DefaultEmailFooter closes the shell. It carries a merge tag on purpose:
// the sweeper substitutes again after wrapping, so {{unsubscribeLink}}
// resolves per recipient.
var DefaultEmailFooter = fmt.Sprintf(`
    </div>
    <div style="text-align: center; padding: 30px 20px; background-color: #f8f9fa; border-top: 2px solid #9BCBBB;">
      <p style="margin: 0 0 10px 0; color: #666; font-size: 14px;">
        <strong>Courselite</strong><br>
        Learn at your own pace
      </p>
      <p style="margin: 10px 0; font-size: 12px; color: #888;">
        &copy; %d Courselite. All rights reserved.
      </p>
      <p style="margin: 10px 0; font-size: 12px; color: #888;">
        You're receiving this email because you signed up at Courselite.
      </p>
      <p style="margin: 10px 0; font-size: 12px;">
        <a href="{{unsubscribeLink}}" style="color: #2D5D4F; text-decoration: underline;">Unsubscribe</a>
      </p>
    </div>
  </div>
</body>
</html>
`, time.Now().Year())

// EmailTemplates is the header/footer pair returned to the admin editor
type EmailTemplates struct {
	Header string `json:"header"`
	Footer string `json:"footer"`
}

// GetEmailHeader returns the persisted header or the built-in default.
// Store errors fall back to the default so a send never blocks on the
// settings table.
func GetEmailHeader(db *gorm.DB) string {
	return getTemplateSetting(db, models.SettingEmailHeader, DefaultEmailHeader)
}

// GetEmailFooter returns the persisted footer or the built-in default
func GetEmailFooter(db *gorm.DB) string {
	return getTemplateSetting(db, models.SettingEmailFooter, DefaultEmailFooter)
}

func getTemplateSetting(db *gorm.DB, key, fallback string) string {
	var setting models.Setting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			LogError("email_template_fetch", err, map[string]interface{}{"key": key})
		}
		return fallback
	}
	if setting.Value == "" {
		return fallback
	}
	return setting.Value
}

// WrapEmailContent surrounds the body with the current header/footer pair.
// The body is passed through untouched and no merge-tag processing happens
// here; the caller layers substitution before and after wrapping.
func WrapEmailContent(db *gorm.DB, content string) string {
	return GetEmailHeader(db) + content + GetEmailFooter(db)
}

// UpdateEmailHeader upserts the persisted header
func UpdateEmailHeader(db *gorm.DB, html string) error {
	return upsertSetting(db, models.SettingEmailHeader, html)
}

// UpdateEmailFooter upserts the persisted footer
func UpdateEmailFooter(db *gorm.DB, html string) error {
	return upsertSetting(db, models.SettingEmailFooter, html)
}

func upsertSetting(db *gorm.DB, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// GetEmailTemplates returns the pair currently in effect
func GetEmailTemplates(db *gorm.DB) EmailTemplates {
	return EmailTemplates{
		Header: GetEmailHeader(db),
		Footer: GetEmailFooter(db),
	}
}

// DefaultEmailTemplates returns the built-in pair (for reset previews)
func DefaultEmailTemplates() EmailTemplates {
	return EmailTemplates{
		Header: DefaultEmailHeader,
		Footer: DefaultEmailFooter,
	}
}

// ResetEmailTemplates restores both persisted values to the defaults
func ResetEmailTemplates(db *gorm.DB) error {
	if err := UpdateEmailHeader(db, DefaultEmailHeader); err != nil {
		return err
	}
	return UpdateEmailFooter(db, DefaultEmailFooter)
}
