package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/psylog/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from
// reader. The trailing newline is trimmed. If EOF occurs after some input was
// read, the partial line is returned.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+" "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func Confirm(reader *bufio.Reader, prompt string, w io.Writer) bool {
	answer, err := GetSimpleText(reader, prompt+" [y/N]", w)
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// GetPassword prints prompt to w and reads a secret from the terminal without
// echo. The caller should wipe the result when done.
func GetPassword(prompt string, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetNewPassword reads a secret twice and fails unless both match and the
// secret is non-empty.
func GetNewPassword(prompt string, w io.Writer) ([]byte, error) {
	first, err := GetPassword(prompt, w)
	if err != nil {
		return nil, err
	}
	second, err := GetPassword("Repeat "+strings.ToLower(prompt[:1])+prompt[1:], w)
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)

	if len(first) == 0 {
		return nil, fmt.Errorf("%w: empty secret", common.ErrValidation)
	}
	if !bytes.Equal(first, second) {
		common.WipeByteArray(first)
		return nil, fmt.Errorf("%w: entries do not match", common.ErrValidation)
	}
	return first, nil
}
