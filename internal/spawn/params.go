package spawn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/creack/pty"
)

// Params describes the child to start.
type Params struct {
	// Path is an absolute path or a $PATH relative command name.
	Path string

	// Args are passed to the child after Path.
	Args []string

	// Dir is the child's working directory. Empty means the current one.
	Dir string

	// Env replaces the environment when non-nil.
	Env []string

	// Stdin is connected to the child's standard input. Nil means /dev/null.
	Stdin io.Reader

	// PTY runs the child's stdout through a pseudo-terminal, so that it
	// behaves as when attached to a console (line buffering, colours).
	// Stderr stays a plain pipe.
	PTY bool

	// PTYSize is the initial terminal size in PTY mode.
	PTYSize pty.Winsize
}

const (
	defaultRows = 24
	defaultCols = 80
)

// Validate fills in defaults and checks that the child can be started.
func (p *Params) Validate() error {
	p.setDefaults()
	if err := p.validateDir(); err != nil {
		return err
	}
	return p.validatePath()
}

func (p *Params) setDefaults() {
	if p.PTYSize.Rows == 0 {
		p.PTYSize.Rows = defaultRows
	}
	if p.PTYSize.Cols == 0 {
		p.PTYSize.Cols = defaultCols
	}
}

func (p *Params) validateDir() (err error) {
	if p.Dir == "" {
		return nil
	}
	p.Dir, err = filepath.Abs(p.Dir)
	if err != nil {
		return fmt.Errorf("bad working dir path: %w", err)
	}
	info, err := os.Stat(p.Dir)
	if err != nil {
		return fmt.Errorf("bad working dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", p.Dir)
	}
	return nil
}

func (p *Params) validatePath() error {
	if p.Path == "" {
		return errors.New("must specify the command to run")
	}
	if _, err := exec.LookPath(p.Path); err != nil {
		return fmt.Errorf("command %q not available: %w", p.Path, err)
	}
	return nil
}
