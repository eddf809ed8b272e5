package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// LinePrompter reads answers line by line from an input stream.
//
// Reading happens on a background goroutine so that Prompt can return
// early when its context is cancelled.  A line typed while no prompt is
// pending is handed to the next Prompt call.
type LinePrompter struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewLinePrompter returns a prompter that writes prompts to out and
// reads answers from in.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: in, out: out, lines: make(chan lineResult)}
}

// Prompt writes prompt and waits for the next line.
func (p *LinePrompter) Prompt(ctx context.Context, prompt string) (string, error) {
	p.once.Do(func() { go p.read() })

	fmt.Fprint(p.out, prompt)

	select {
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	}
}

func (p *LinePrompter) read() {
	defer close(p.lines)

	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- lineResult{line: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		p.lines <- lineResult{err: err}
	}
}
