// Package shell implements the interactive REPL (component K) that reads
// commands from standard input and dispatches them to a volume.Session.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/getuliobr/fat32-shell/volume"
)

// Shell reads whitespace-separated commands from in, dispatches them
// against sess, and writes output to out and errors to errOut.
type Shell struct {
	sess   *volume.Session
	in     *bufio.Scanner
	out    io.Writer
	errOut io.Writer
}

// New builds a Shell over an already-mounted session.
func New(sess *volume.Session, in io.Reader, out, errOut io.Writer) *Shell {
	return &Shell{sess: sess, in: bufio.NewScanner(in), out: out, errOut: errOut}
}

// Run reads and dispatches commands until "exit" or end of input.
func (s *Shell) Run() {
	for {
		fmt.Fprintf(s.out, "fatshell:[%s/] $ ", s.promptDir())
		if !s.in.Scan() {
			return
		}

		fields := strings.Fields(s.in.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "exit":
			if len(args) != 0 {
				s.arityError(cmd)
				continue
			}
			return

		case "info":
			if len(args) != 0 {
				s.arityError(cmd)
				continue
			}
			fmt.Fprint(s.out, s.sess.Info())

		case "ls":
			if len(args) != 0 {
				s.arityError(cmd)
				continue
			}
			fmt.Fprint(s.out, s.sess.Ls())

		case "cluster":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			n, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				fmt.Fprintf(s.errOut, "cluster: %s: not a number\n", args[0])
				continue
			}
			dump, err := s.sess.Cluster(uint32(n))
			if err != nil {
				fmt.Fprintf(s.errOut, "cluster: %s\n", err)
				continue
			}
			fmt.Fprint(s.out, dump)

		case "cd":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Cd(args[0]); err != nil {
				fmt.Fprintf(s.errOut, "cd: %s: %s\n", args[0], err)
			}

		case "pwd":
			if len(args) != 0 {
				s.arityError(cmd)
				continue
			}
			fmt.Fprintln(s.out, s.sess.Pwd())

		case "attr":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			report, err := s.sess.Attr(args[0])
			if err != nil {
				fmt.Fprintf(s.errOut, "attr: %s: %s\n", args[0], err)
				continue
			}
			fmt.Fprint(s.out, report)

		case "touch":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Touch(args[0]); err != nil {
				fmt.Fprintf(s.errOut, "touch: %s: %s\n", args[0], err)
			}

		case "mkdir":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Mkdir(args[0]); err != nil {
				fmt.Fprintf(s.errOut, "mkdir: %s: %s\n", args[0], err)
			}

		case "rm":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Rm(args[0]); err != nil {
				fmt.Fprintf(s.errOut, "rm: %s: %s\n", args[0], err)
			}

		case "rmdir":
			if len(args) != 1 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Rmdir(args[0]); err != nil {
				fmt.Fprintf(s.errOut, "rmdir: %s: %s\n", args[0], err)
			}

		case "rename":
			if len(args) != 2 {
				s.arityError(cmd)
				continue
			}
			if err := s.sess.Rename(args[0], args[1]); err != nil {
				fmt.Fprintf(s.errOut, "rename: %s\n", err)
			}

		default:
			// Unknown commands are silently ignored.
		}
	}
}

func (s *Shell) arityError(cmd string) {
	fmt.Fprintf(s.errOut, "%s: Invalid parameter count\n", cmd)
}

func (s *Shell) promptDir() string {
	if s.sess.Stack.Depth() == 0 {
		return "img"
	}
	return s.sess.Stack.Current().Name
}
