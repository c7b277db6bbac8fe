package operator_test

import (
	"bytes"
	"testing"

	"github.com/signalnine/grind/internal/classify"
	"github.com/signalnine/grind/internal/operator"
	"github.com/signalnine/grind/internal/result"
	"github.com/stretchr/testify/assert"
)

func TestEchoPrefixes(t *testing.T) {
	var buf bytes.Buffer
	s := operator.New(&buf, false)
	s.Echo(classify.Warning, "w")
	s.Echo(classify.Error, "e")
	s.Echo(classify.Critical, "c")
	s.Echo(classify.Plain, "ignored")
	s.Echo(classify.Stat, "ignored too")
	assert.Equal(t, "%%% WARN: w\n%%% ERRO: e\n%%% CRIT: c\n", buf.String())
}

func TestColorDisabledForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := operator.New(&buf, true)
	s.Echo(classify.Critical, "boom")
	assert.Equal(t, "%%% CRIT: boom\n", buf.String())
}

func TestStatIsVerbatim(t *testing.T) {
	var buf bytes.Buffer
	s := operator.New(&buf, true)
	s.Stat("cpu=12,mem=34")
	assert.Equal(t, "cpu=12,mem=34\n", buf.String())
}

func TestAborted(t *testing.T) {
	var buf bytes.Buffer
	operator.New(&buf, false).Aborted(7, result.CauseStalledOutput)
	assert.Equal(t, "#ABORTED 7 cause: \"process output timed out\"\n", buf.String())
}
