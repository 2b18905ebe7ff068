package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name? ", out.String())

	got, err = GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, Confirm(rdr(tt.input), "Sure?", &out), "%q", tt.input)
	}
}

func TestGetPassword_Error(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}
	var out bytes.Buffer
	_, err := GetPassword("Password", &out)
	assert.Error(t, err)
}

func TestGetNewPassword(t *testing.T) {
	var out bytes.Buffer

	fakeTerminal(t, "secret", "secret")
	pw, err := GetNewPassword("Archive password", &out)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pw))
	assert.Contains(t, out.String(), "Repeat archive password")

	fakeTerminal(t, "secret", "other")
	_, err = GetNewPassword("Archive password", &out)
	assert.ErrorIs(t, err, common.ErrValidation)

	fakeTerminal(t, "", "")
	_, err = GetNewPassword("Archive password", &out)
	assert.ErrorIs(t, err, common.ErrValidation)
}
