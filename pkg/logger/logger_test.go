package logger

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Logging must be usable before Init runs; services log during tests and
// early bootstrap without any setup.
func TestGlobalFuncsSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		WithError(errors.New("boom")).Debug("pre-init error")
		WithField("key", "value").Debug("pre-init field")
		WithFields(logrus.Fields{"a": 1}).Debug("pre-init fields")
		Debug("plain debug")
		Infof("formatted %d", 1)
		LogRequestEvent("created", "req-1", "user-1", nil)
		LogUserAction("user-1", "test", map[string]interface{}{"k": "v"})
		LogSessionEvent("ended", "sess-1", "user-1", nil)
	})
}

func TestWithFieldReturnsEntry(t *testing.T) {
	entry := WithField("session_id", "sess-1")
	require.NotNil(t, entry)
	assert.Equal(t, "sess-1", entry.Data["session_id"])
}
