package supervisor

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
)

// maxLineBytes bounds a single output line. Longer lines end the
// stream early, which is treated like any other read error.
const maxLineBytes = 1024 * 1024

type streamItem struct {
	tag    StreamTag
	line   string
	closed bool
}

// drainStream reads r line-by-line until end-of-stream or a read
// error and forwards every line to out, followed by one closing
// sentinel. Read errors are treated as stream closure; everything
// read up to that point has already been forwarded.
//
// Invalid UTF-8 in the byte stream is replaced with U+FFFD rather
// than aborting the read.
func drainStream(r io.Reader, tag StreamTag, out chan<- streamItem) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		out <- streamItem{
			tag:  tag,
			line: strings.ToValidUTF8(scanner.Text(), "�"),
		}
	}

	out <- streamItem{tag: tag, closed: true}
}

// stdioPipes is the pair of stdout/stderr pipes connecting the child
// to the drains. The supervisor owns all four ends.
type stdioPipes struct {
	outR, outW *os.File
	errR, errW *os.File
}

// newStdioPipes wires a fresh pipe pair into cmd. The write ends
// belong to the child after Start; the read ends feed the drains.
func newStdioPipes(cmd *exec.Cmd) (*stdioPipes, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, err
	}

	cmd.Stdout = outW
	cmd.Stderr = errW

	return &stdioPipes{outR: outR, outW: outW, errR: errR, errW: errW}, nil
}

// closeWriters drops the parent's copies of the write ends, right
// after the child has inherited them.
func (p *stdioPipes) closeWriters() {
	p.outW.Close()
	p.errW.Close()
}

// closeReaders forces both drains to end-of-stream. Safe to call more
// than once.
func (p *stdioPipes) closeReaders() {
	p.outR.Close()
	p.errR.Close()
}

func (p *stdioPipes) closeAll() {
	p.closeWriters()
	p.closeReaders()
}
