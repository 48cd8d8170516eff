package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stdlib logger on stderr with a component prefix, for libraries that need *log.Logger.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stderr, prefix, log.LstdFlags|log.Lmsgprefix)
}
