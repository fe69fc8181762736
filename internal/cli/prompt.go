package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/gitredate/gitredate/internal/redate"
)

// confirm waits for one line of input. Any answer proceeds, including an
// empty line or immediate EOF; interrupting the process is the way out.
// Only a failed read aborts the run.
func confirm(in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Press Enter to continue (Ctrl-C aborts): ")
	}

	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return redate.Aborted(err)
	}
	return nil
}
