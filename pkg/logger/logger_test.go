package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	assert.True(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.False(t, SetLevel("verbose"))
	assert.False(t, SetLevel(""))
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.True(t, SetLevel("WARN"))
	assert.Equal(t, zapcore.WarnLevel, Level())
}
