package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapEmailContent_DefaultsWhenNothingPersisted(t *testing.T) {
	db := newTestDB(t)

	wrapped := WrapEmailContent(db, "<p>Hello</p>")

	assert.True(t, strings.HasPrefix(wrapped, DefaultEmailHeader))
	assert.True(t, strings.HasSuffix(wrapped, DefaultEmailFooter))
	assert.Contains(t, wrapped, "<p>Hello</p>")
}

func TestWrapEmailContent_RoundTripPreservesBody(t *testing.T) {
	db := newTestDB(t)
	body := "<h2>Lesson 1</h2><p>Some {{firstName}} content & entities</p>"

	wrapped := WrapEmailContent(db, body)

	// The wrapper never mutates the body
	inner := strings.TrimSuffix(strings.TrimPrefix(wrapped, DefaultEmailHeader), DefaultEmailFooter)
	assert.Equal(t, body, inner)
}

func TestUpdateEmailTemplates_PersistedOverrideWins(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, UpdateEmailHeader(db, "<header>"))
	require.NoError(t, UpdateEmailFooter(db, "<footer>"))

	assert.Equal(t, "<header>", GetEmailHeader(db))
	assert.Equal(t, "<footer>", GetEmailFooter(db))
	assert.Equal(t, "<header><body/><footer>", WrapEmailContent(db, "<body/>"))
}

func TestUpdateEmailHeader_UpsertsOnRepeat(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, UpdateEmailHeader(db, "v1"))
	require.NoError(t, UpdateEmailHeader(db, "v2"))

	assert.Equal(t, "v2", GetEmailHeader(db))
}

func TestResetEmailTemplates(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, UpdateEmailHeader(db, "<custom>"))
	require.NoError(t, UpdateEmailFooter(db, "<custom>"))
	require.NoError(t, ResetEmailTemplates(db))

	templates := GetEmailTemplates(db)
	assert.Equal(t, DefaultEmailHeader, templates.Header)
	assert.Equal(t, DefaultEmailFooter, templates.Footer)
}

func TestDefaultFooterCarriesUnsubscribeTag(t *testing.T) {
	// The sweeper's second substitution pass depends on this
	assert.Contains(t, DefaultEmailFooter, "{{unsubscribeLink}}")
}
