package utils

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
)

var noColorize atomic.Bool

// SetColorize toggles colourised pretty printing for the whole process.
func SetColorize(on bool) {
	noColorize.Store(!on)
}

func CanColorize(col func(...interface{}) string) func(...interface{}) string {
	return func(is ...interface{}) string {
		if noColorize.Load() {
			return fmt.Sprintf(strings.Repeat("%v", len(is)), is...)
		}
		return col(is...)
	}
}

var (
	FunColor   = CanColorize(color.New(color.FgHiYellow).SprintFunc())
	NodeColor  = CanColorize(color.New(color.FgHiCyan).SprintFunc())
	EdgeColor  = CanColorize(color.New(color.FgHiWhite, color.Faint).SprintFunc())
	VarColor   = CanColorize(color.New(color.FgHiGreen).SprintFunc())
	ErrorColor = CanColorize(color.New(color.FgHiRed, color.Bold).SprintFunc())
	OkColor    = CanColorize(color.New(color.FgGreen, color.Bold).SprintFunc())
	WarnColor  = CanColorize(color.New(color.FgYellow, color.Bold).SprintFunc())
)
