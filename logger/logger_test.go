package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	l, err := New("warn")
	require.NoError(t, err)

	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.ErrorLevel))

	_, err = New("loud")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	var l *Logger

	assert.NotNil(t, l.OrNop().SugaredLogger)
	assert.NotNil(t, (&Logger{}).OrNop().SugaredLogger)

	child := NewNop().With("component", "test")
	assert.NotNil(t, child.SugaredLogger)
}
