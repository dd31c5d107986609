package aspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, []string{"mfa", "session timeout"},
		Normalize([]string{" MFA ", "mfa", "", "  ", "Session Timeout"}))
	// First-seen order survives deduplication.
	assert.Equal(t, []string{"b", "a"}, Normalize([]string{"b", "A", "a", "B"}))
}

func TestSet(t *testing.T) {
	set := Set([]string{" MFA ", "logs", ""})
	assert.Len(t, set, 2)
	assert.Contains(t, set, "mfa")
	assert.Contains(t, set, "logs")
}

func TestContainsAny(t *testing.T) {
	needles := Set([]string{"MFA", "access logs"})

	assert.True(t, ContainsAny("Enforce mfa for remote access", needles))
	assert.True(t, ContainsAny("Review ACCESS LOGS quarterly", needles))
	assert.False(t, ContainsAny("Encrypt data at rest", needles))
	assert.False(t, ContainsAny("anything", Set(nil)))
}
