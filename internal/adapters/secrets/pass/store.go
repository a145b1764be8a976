package pass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/ports"
)

var (
	ErrUnavailable = errors.New("pass command unavailable")
	// ErrMultilineValue is returned by Put: only the first line of a pass
	// entry is read back.
	ErrMultilineValue = errors.New("pass value must be a single line")
)

const DefaultPrefix = "primedictation"

type runFunc func(ctx context.Context, input string, args ...string) (stdout string, stderr string, err error)

// Store keeps values in the user's pass(1) password store, one entry per key
// under prefix. The value is the entry's first line so users can annotate
// entries by hand without breaking reads.
type Store struct {
	run    runFunc
	prefix string
}

var _ ports.KeyValueStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{run: runPassCommand, prefix: DefaultPrefix}
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("pass put %q: %w", key, ErrMultilineValue)
	}

	_, err := s.invoke(ctx, "put", key, value+"\n", "insert", "--multiline", "--force")
	return err
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	stdout, err := s.invoke(ctx, "get", key, "", "show")
	if err != nil {
		return "", err
	}

	first, _, _ := strings.Cut(stdout, "\n")
	return strings.TrimSuffix(first, "\r"), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.invoke(ctx, "delete", key, "", "rm", "--force")
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil
	}
	return err
}

// invoke runs `pass <args...> <entry>` for key. A missing entry comes back
// as domain.ErrKeyNotFound.
func (s *Store) invoke(ctx context.Context, op string, key string, input string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entry, err := s.entry(key)
	if err != nil {
		return "", fmt.Errorf("pass %s: %w", op, err)
	}

	stdout, stderr, err := s.run(ctx, input, append(args, entry)...)
	switch {
	case err == nil:
		return stdout, nil
	case strings.Contains(stderr, "is not in the password store"):
		return "", fmt.Errorf("pass %s %q: %w", op, key, domain.ErrKeyNotFound)
	case stderr == "":
		return "", fmt.Errorf("pass %s %q: %w", op, key, err)
	default:
		return "", fmt.Errorf("pass %s %q: %w: %s", op, key, err, stderr)
	}
}

func (s *Store) entry(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("store key is empty")
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("store key %q escapes the pass prefix", key)
		}
	}
	if s.prefix == "" {
		return trimmed, nil
	}
	return path.Join(s.prefix, trimmed), nil
}

func runPassCommand(ctx context.Context, input string, args ...string) (string, string, error) {
	bin, err := exec.LookPath("pass")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrUnavailable
		}
		return "", "", fmt.Errorf("locate pass command: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	return stdout.String(), strings.TrimSpace(stderr.String()), err
}
