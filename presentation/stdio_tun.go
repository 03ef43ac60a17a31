package presentation

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// StdioTun is the built-in tunnel device: each line read from the input
// becomes one outbound payload, and each decrypted payload is printed as one
// line. It turns a node into an encrypted line pipe; real deployments inject
// their own device.
type StdioTun struct {
	in *bufio.Reader

	mu  sync.Mutex
	out io.Writer
}

func NewStdioTun(in io.Reader, out io.Writer) *StdioTun {
	return &StdioTun{in: bufio.NewReader(in), out: out}
}

func (t *StdioTun) Read(data []byte) (int, error) {
	line, err := t.in.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" && err != nil {
		return 0, err
	}
	return copy(data, line), nil
}

func (t *StdioTun) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.out, "%s\n", data); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (t *StdioTun) Close() error {
	return nil
}
