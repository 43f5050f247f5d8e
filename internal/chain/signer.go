package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/manifest-network/txpipe/internal/models"
)

// DeniedExitCode is the exit status an external signer uses to report that
// the user refused the transaction.
const DeniedExitCode = 3

// Signer turns an unsigned transaction into broadcastable tx bytes.
type Signer interface {
	Sign(ctx context.Context, opts *models.TxOptions) ([]byte, error)
}

// ExecSigner delegates signing to an external wallet program. The program
// reads the unsigned transaction as JSON on stdin and writes the base64
// encoded signed tx bytes to stdout.
type ExecSigner struct {
	Command string
	Args    []string
}

// NewExecSigner splits a command line on whitespace.
func NewExecSigner(commandLine string) (*ExecSigner, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("signer command is empty")
	}
	return &ExecSigner{Command: fields[0], Args: fields[1:]}, nil
}

func (s *ExecSigner) Sign(ctx context.Context, opts *models.TxOptions) ([]byte, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal unsigned transaction: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == DeniedExitCode {
			return nil, fmt.Errorf("%w: %s", ErrUserDenied, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("signer %s failed: %w: %s", s.Command, err, strings.TrimSpace(stderr.String()))
	}

	txBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(stdout.String()))
	if err != nil {
		return nil, fmt.Errorf("signer %s returned invalid base64: %w", s.Command, err)
	}
	if len(txBytes) == 0 {
		return nil, fmt.Errorf("signer %s returned no tx bytes", s.Command)
	}
	return txBytes, nil
}
