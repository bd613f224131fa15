package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command: одно обращение к внешнему инструменту.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandRunner запускает внешний процесс и возвращает его stdout.
// Отмена ctx убивает процесс.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner: реализация поверх os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", c.Name, err, tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

// tail оставляет конец вывода: у git и k6 причина ошибки пишется последней
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
